package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jhouston2019/estimatereviewpro-sub000/internal/baseline"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/claim"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/config"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/engine"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/exposure"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/policy"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/render"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/schema"
	"github.com/jhouston2019/estimatereviewpro-sub000/internal/validation"
)

// auditFlags are the audit command's flags. Flags left unset fall back to
// the loaded configuration.
type auditFlags struct {
	format     string
	out        string
	outDir     string
	jobs       int
	policyName string
	policyFile string
	baseline   string
	failOn     string
	extract    bool
	provider   string
	model      string
}

func newAuditCmd(a *app) *cobra.Command {
	var f auditFlags
	cmd := &cobra.Command{
		Use:   "audit <claim file>...",
		Short: "Compare each claim's estimate against its report directives and room dimensions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := f.apply(cmd, a.cfg)
			if err := cfg.Validate(); err != nil {
				return withCode(exitCodeBadInput, err)
			}
			return runAudit(cmd.Context(), cfg, a.log, auditRun{
				claims:  args,
				out:     f.out,
				outDir:  f.outDir,
				extract: f.extract,
				stdout:  cmd.OutOrStdout(),
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", "", "output format: json or md")
	fl.StringVarP(&f.out, "out", "o", "", "output file for a single claim (default stdout)")
	fl.StringVar(&f.outDir, "out-dir", "", "directory receiving one <claim id>.<format> file per claim")
	fl.IntVarP(&f.jobs, "jobs", "j", 0, "claims analyzed concurrently")
	fl.StringVar(&f.policyName, "policy", "", "built-in severity policy: "+strings.Join(policy.Names(), ", "))
	fl.StringVar(&f.policyFile, "policy-file", "", "YAML severity policy (overrides --policy)")
	fl.StringVar(&f.baseline, "baseline", "", "YAML cost baseline (default: embedded table)")
	fl.StringVar(&f.failOn, "fail-on", "", "exit 2 when any deviation reaches this severity: none, low, moderate, high, critical")
	fl.BoolVar(&f.extract, "extract", false, "extract directives from the claim's report when it lists none")
	fl.StringVar(&f.provider, "provider", "", "LLM provider for --extract: anthropic, openai, google")
	fl.StringVar(&f.model, "model", "", "LLM model for --extract")
	return cmd
}

// apply overlays the flags the user set on cfg.
func (f auditFlags) apply(cmd *cobra.Command, cfg config.Config) config.Config {
	changed := cmd.Flags().Changed
	if changed("format") {
		cfg.Format = f.format
	}
	if changed("jobs") {
		cfg.Jobs = f.jobs
	}
	if changed("policy") {
		cfg.Policy = f.policyName
		cfg.PolicyFile = ""
	}
	if changed("policy-file") {
		cfg.PolicyFile = f.policyFile
	}
	if changed("baseline") {
		cfg.BaselineFile = f.baseline
	}
	if changed("fail-on") {
		cfg.FailOn = f.failOn
	}
	if changed("provider") {
		cfg.LLM.Provider = f.provider
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	return cfg
}

// auditRun describes one invocation of the audit command.
type auditRun struct {
	claims  []string
	out     string
	outDir  string
	extract bool
	stdout  io.Writer
}

type auditResult struct {
	claim    *claim.Claim
	analysis *schema.DeviationAnalysis
}

func runAudit(ctx context.Context, cfg config.Config, log *zap.Logger, r auditRun) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(r.claims) == 0 {
		return withCode(exitCodeBadInput, fmt.Errorf("audit: no claim files given"))
	}
	if r.out != "" && len(r.claims) > 1 {
		return withCode(exitCodeBadInput, fmt.Errorf("audit: --out takes a single claim; use --out-dir for %d claims", len(r.claims)))
	}
	threshold, err := config.ParseFailOn(cfg.FailOn)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	pol, err := cfg.ResolvePolicy()
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	base, err := cfg.ResolveBaseline()
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}
	log.Debug("audit starting",
		zap.Int("claims", len(r.claims)),
		zap.String("policy", pol.Name),
		zap.String("baseline", base.Version()),
		zap.Int("jobs", cfg.Jobs))

	results := make([]auditResult, len(r.claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Jobs)
	for i, path := range r.claims {
		i, path := i, path
		g.Go(func() error {
			res, err := auditClaim(gctx, cfg, pol, base, log, path, r.extract)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeResults(cfg.Format, r, results); err != nil {
		return err
	}

	if threshold == "" {
		return nil
	}
	for _, res := range results {
		if exposure.Exceeds(res.analysis, threshold) {
			return withCode(exitCodeFailOn, fmt.Errorf("audit: claim %s has a %s deviation (fail-on %s)",
				res.claim.ID, exposure.MaxSeverity(res.analysis), threshold))
		}
	}
	return nil
}

func auditClaim(ctx context.Context, cfg config.Config, pol policy.Policy, base *baseline.Table, log *zap.Logger, path string, extract bool) (auditResult, error) {
	c, err := claim.Load(path)
	if err != nil {
		return auditResult{}, withCode(exitCodeBadInput, err)
	}
	log = log.With(zap.String("claim", c.ID))

	if extract && len(c.Directives) == 0 && c.ReportPath() != "" {
		ex, err := extractDirectives(ctx, cfg, c.ReportPath(), nil)
		if err != nil {
			return auditResult{}, err
		}
		c.Directives = ex.Directives
		if c.ReportConfidence == 0 {
			c.ReportConfidence = ex.Confidence
		}
		log.Info("directives extracted", zap.Int("directives", len(ex.Directives)), zap.Float64("confidence", ex.Confidence))
	}

	a, err := engine.Analyze(c.Input(), engine.Options{Baseline: base, Policy: pol, Logger: log})
	if err != nil {
		if code := validation.CodeOf(err); code != "" {
			log.Warn("claim rejected", zap.String("code", string(code)), zap.Error(err))
			return auditResult{}, withCode(exitCodeBadInput, fmt.Errorf("claim %s: %w", c.ID, err))
		}
		return auditResult{}, fmt.Errorf("claim %s: %w", c.ID, err)
	}
	log.Info("claim analyzed",
		zap.String("analysis_id", a.AnalysisID),
		zap.Int("deviations", len(a.Deviations)),
		zap.Float64("impact_min", a.TotalImpactMin),
		zap.Float64("impact_max", a.TotalImpactMax))
	return auditResult{claim: c, analysis: a}, nil
}

func writeResults(format string, r auditRun, results []auditResult) error {
	if r.outDir != "" {
		if err := os.MkdirAll(r.outDir, 0o755); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	seen := make(map[string]string, len(results))
	for _, res := range results {
		data, err := renderAnalysis(format, res.analysis)
		if err != nil {
			return err
		}
		switch {
		case r.outDir != "":
			if prev, ok := seen[res.claim.ID]; ok {
				return withCode(exitCodeBadInput, fmt.Errorf("audit: claims %s and %s share id %q", prev, res.claim.Path, res.claim.ID))
			}
			seen[res.claim.ID] = res.claim.Path
			if err := writeFile(filepath.Join(r.outDir, res.claim.ID+"."+format), data); err != nil {
				return err
			}
		case r.out != "" && r.out != "-":
			if err := writeFile(r.out, data); err != nil {
				return err
			}
		default:
			if _, err := r.stdout.Write(data); err != nil {
				return fmt.Errorf("audit: write: %w", err)
			}
		}
	}
	return nil
}

func renderAnalysis(format string, a *schema.DeviationAnalysis) ([]byte, error) {
	if format == "json" {
		return render.RenderJSON(a)
	}
	return []byte(render.RenderMarkdown(a)), nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
