package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/config"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/llm"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/render"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/report"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		out      string
		provider string
		model    string
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "extract <report file>",
		Short: "Extract scope directives from an expert report and print them as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("provider") {
				cfg.LLM.Provider = provider
			}
			if cmd.Flags().Changed("model") {
				cfg.LLM.Model = model
			}
			var dbg io.Writer
			if debug {
				dbg = cmd.ErrOrStderr()
			}
			return runExtract(cmd.Context(), cfg, a.log, args[0], out, dbg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider: anthropic, openai, google")
	cmd.Flags().StringVar(&model, "model", "", "LLM model")
	cmd.Flags().BoolVar(&debug, "debug", false, "print prompts to stderr")
	return cmd
}

func runExtract(ctx context.Context, cfg config.Config, log *zap.Logger, path, out string, debug, stdout io.Writer) error {
	if log == nil {
		log = zap.NewNop()
	}
	ex, err := extractDirectives(ctx, cfg, path, debug)
	if err != nil {
		return err
	}
	for _, adj := range ex.Adjustments {
		log.Warn("model output adjusted", zap.String("field", adj.Field), zap.String("detail", adj.Message))
	}
	data, err := render.RenderDirectives(ex.Directives, ex.Confidence)
	if err != nil {
		return err
	}
	if out != "" && out != "-" {
		return writeFile(out, data)
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("extract: write: %w", err)
	}
	return nil
}

// extractDirectives segments the report and runs the extractor, mapping
// failures to exit codes.
func extractDirectives(ctx context.Context, cfg config.Config, path string, debug io.Writer) (*llm.Extraction, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	passages, err := report.ParseFile(path)
	if err != nil {
		return nil, withCode(exitCodeBadInput, err)
	}
	model := cfg.LLM.Model
	if model == "" {
		model = llm.DefaultModel(cfg.LLM.Provider)
	}
	ex, err := llm.Extract(ctx, passages, llm.Options{
		Provider:    cfg.LLM.Provider,
		Model:       model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Debug:       debug,
	})
	switch {
	case err == nil:
		return ex, nil
	case errors.Is(err, llm.ErrInvalidModelOutput):
		return nil, withCode(exitCodeInvalidOutput, fmt.Errorf("extract %s: %w", path, err))
	case errors.Is(err, llm.ErrMissingAPIKey):
		return nil, withCode(exitCodeBadInput, fmt.Errorf("extract %s: %w", path, err))
	default:
		return nil, withCode(exitCodeAPIError, fmt.Errorf("extract %s: %w", path, err))
	}
}
