package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/config"
)

// Exit codes.
const (
	exitCodeOK            = 0
	exitCodeError         = 1
	exitCodeFailOn        = 2
	exitCodeBadInput      = 3
	exitCodeAPIError      = 4
	exitCodeInvalidOutput = 5
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitCodeOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitCodeError
}

// app holds state shared by the subcommands once the root command has run.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg config.Config
	log *zap.Logger
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "estimatecheck",
		Short:         "Room-aware quantity deviation checks for construction estimates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(newAuditCmd(a), newExtractCmd(a), newBaselineCmd(a))

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func (a *app) init() error {
	log, err := newLogger(a.verbose)
	if err != nil {
		return err
	}
	a.log = log
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return withCode(exitCodeBadInput, err)
	}
	cfg, err := config.Load(a.configPath, os.Getenv)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	a.cfg = cfg
	log.Debug("configuration loaded",
		zap.String("config", a.configPath),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("policy", cfg.Policy),
		zap.String("policy_file", cfg.PolicyFile),
		zap.String("baseline_file", cfg.BaselineFile))
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}
