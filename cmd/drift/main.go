// Command drift runs the semantic drift detection pipeline: structural
// fingerprinting, type signature normalization, call graph vectors,
// dependency context, pairwise scoring, clustering, and report generation,
// plus read-only inspect/search queries over a completed run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"driftsemantic/domain/callgraph"
	"driftsemantic/domain/cluster"
	"driftsemantic/domain/codeunit"
	"driftsemantic/domain/config"
	"driftsemantic/domain/core"
	"driftsemantic/domain/depcontext"
	"driftsemantic/domain/embed"
	"driftsemantic/domain/fingerprint"
	"driftsemantic/domain/ingest"
	"driftsemantic/domain/inspect"
	"driftsemantic/domain/pipeline"
	"driftsemantic/domain/report"
	"driftsemantic/domain/score"
	"driftsemantic/domain/search"
	"driftsemantic/domain/typesig"
	"driftsemantic/domain/verdict"
	"driftsemantic/internal"
)

var log = internal.DefaultLogger

func main() {
	var outputDir string
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect structural and semantic drift across a TypeScript/React codebase",
	}
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "pipeline artifact directory (default .drift-audit/semantic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".drift.yaml", "path to an optional config file")

	loadConfig := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		newRunCmd(loadConfig),
		newFingerprintCmd(loadConfig),
		newTypeSigCmd(loadConfig),
		newCallGraphCmd(loadConfig),
		newDepContextCmd(loadConfig),
		newScoreCmd(loadConfig),
		newClusterCmd(loadConfig),
		newReportCmd(loadConfig),
		newEmbedCmd(loadConfig),
		newIngestPurposesCmd(loadConfig),
		newIngestFindingsCmd(loadConfig),
		newInspectCmd(loadConfig),
		newSearchCmd(loadConfig),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loader func() (config.Config, error)

// ignoreCtx adapts the stages that complete too quickly for cancellation to
// matter into the ctx-aware stage function shape.
func ignoreCtx(fn func(config.Config) (int, error)) func(context.Context, config.Config) (int, error) {
	return func(_ context.Context, cfg config.Config) (int, error) { return fn(cfg) }
}

func loadUnits(cfg config.Config) ([]codeunit.CodeUnit, error) {
	units, err := codeunit.ReadCodeUnits(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, core.ErrEmptyCodeUnits
	}
	return units, nil
}

func runFingerprintStage(cfg config.Config) (int, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return 0, err
	}
	result := fingerprint.Compute(units)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactStructuralFingerprints, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func runTypeSigStage(cfg config.Config) (int, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return 0, err
	}
	result := typesig.Compute(units)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactTypeSignatures, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func runCallGraphStage(cfg config.Config) (int, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return 0, err
	}
	result := callgraph.Compute(units)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactCallGraph, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func runDepContextStage(cfg config.Config) (int, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return 0, err
	}
	result := depcontext.Compute(units)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactDependencyContext, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func loadScoreInputs(cfg config.Config) ([]codeunit.CodeUnit, score.Inputs, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return nil, score.Inputs{}, err
	}

	var in score.Inputs
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactStructuralFingerprints, &in.Fingerprints); err != nil {
		return nil, in, err
	}
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactTypeSignatures, &in.TypeSigs); err != nil {
		return nil, in, err
	}
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactCallGraph, &in.CallVectors); err != nil {
		return nil, in, err
	}
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactDependencyContext, &in.DepContexts); err != nil {
		return nil, in, err
	}

	if codeunit.HasArtifact(cfg.OutputDir, core.ArtifactSemanticEmbeddings) {
		if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactSemanticEmbeddings, &in.Embeddings); err != nil {
			return nil, in, err
		}
	}
	if codeunit.HasArtifact(cfg.OutputDir, core.ArtifactStructuralPatterns) {
		codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactStructuralPatterns, &in.PatternTags)
	}

	return units, in, nil
}

func runScoreStage(ctx context.Context, cfg config.Config) (int, error) {
	units, in, err := loadScoreInputs(cfg)
	if err != nil {
		return 0, err
	}
	opts := score.Options{
		Threshold:  cfg.Threshold,
		MaxUnits:   cfg.Guardrails.MaxUnits,
		MaxPairs:   cfg.Guardrails.MaxPairs,
		MaxRuntime: time.Duration(cfg.Guardrails.MaxRuntimeMs) * time.Millisecond,
	}
	result, err := score.Compute(ctx, units, in, opts)
	if err != nil {
		return 0, err
	}
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactSimilarityMatrix, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func runClusterStage(cfg config.Config) (int, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return 0, err
	}
	var pairs []score.PairScore
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactSimilarityMatrix, &pairs); err != nil {
		return 0, err
	}
	result := cluster.Compute(units, pairs, cfg.Threshold)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactClusters, result); err != nil {
		return 0, err
	}
	return len(result), nil
}

func loadReportInputs(cfg config.Config) ([]codeunit.CodeUnit, []score.PairScore, []cluster.Cluster, []verdict.Finding, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	var pairs []score.PairScore
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactSimilarityMatrix, &pairs); err != nil {
		return nil, nil, nil, nil, err
	}
	var clusters []cluster.Cluster
	if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactClusters, &clusters); err != nil {
		return nil, nil, nil, nil, err
	}
	var findings []verdict.Finding
	if codeunit.HasArtifact(cfg.OutputDir, core.ArtifactFindings) {
		codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactFindings, &findings)
	}
	return units, pairs, clusters, findings, nil
}

func runReportStage(cfg config.Config) (int, error) {
	units, pairs, clusters, findings, err := loadReportInputs(cfg)
	if err != nil {
		return 0, err
	}
	unitsByID := codeunit.IndexByID(units)

	markdown := report.GenerateMarkdown(clusters, findings, unitsByID)
	if _, err := codeunit.WriteRawFile(cfg.OutputDir, string(core.ArtifactDriftReport)+".md", []byte(markdown)); err != nil {
		return 0, err
	}

	atlas := report.GenerateDependencyAtlas(clusters, pairs, unitsByID)
	if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactDependencyAtlas, atlas); err != nil {
		return 0, err
	}

	written := 2
	findingByCluster := make(map[string]*verdict.Finding, len(findings))
	for i := range findings {
		findingByCluster[findings[i].ClusterID.String()] = &findings[i]
	}
	var entries []report.ManifestEntry
	for _, c := range clusters {
		f, ok := findingByCluster[c.ID]
		if !ok {
			continue
		}
		if f.Verdict != verdict.StatusDuplicate && f.Verdict != verdict.StatusOverlapping {
			continue
		}
		entries = append(entries, report.BuildManifestEntry(f, c, unitsByID))
	}
	if len(entries) > 0 && cfg.ManifestPath != "" {
		if err := report.UpdateManifest(cfg.ManifestPath, entries); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}

func newRunCmd(loadConfig loader) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full fingerprint -> typesig -> callgraph -> depcontext -> score -> cluster -> report pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Threshold = threshold
			}
			ctx := cmd.Context()
			result := pipeline.NewResult(core.NewRunID(), pipeline.DefaultPlan)

			stages := []struct {
				name pipeline.StageName
				fn   func(context.Context, config.Config) (int, error)
			}{
				{pipeline.StageFingerprint, ignoreCtx(runFingerprintStage)},
				{pipeline.StageTypeSig, ignoreCtx(runTypeSigStage)},
				{pipeline.StageCallGraph, ignoreCtx(runCallGraphStage)},
				{pipeline.StageDepContext, ignoreCtx(runDepContextStage)},
				{pipeline.StageScore, runScoreStage},
				{pipeline.StageCluster, ignoreCtx(runClusterStage)},
				{pipeline.StageReport, ignoreCtx(runReportStage)},
			}

			for _, s := range stages {
				if err := ctx.Err(); err != nil {
					return err
				}
				stageFn := s.fn
				err := result.Run(s.name, func() (int, error) { return stageFn(ctx, cfg) })
				if err != nil {
					log.Error("stage %s failed: %v", s.name, err)
					break
				}
				log.Info("stage %s complete", s.name)
			}

			if !result.Success() {
				return fmt.Errorf("pipeline run %s failed", result.RunID)
			}
			fmt.Printf("run %s complete: %d stages\n", result.RunID, len(result.Stages))
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.35, "minimum score to report in Stage S")
	return cmd
}

func newFingerprintCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute structural fingerprints (Stage F)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runFingerprintStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d fingerprints\n", n)
			return nil
		},
	}
}

func newTypeSigCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "typesig",
		Short: "Compute type signatures (Stage T)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runTypeSigStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d type signatures\n", n)
			return nil
		},
	}
}

func newCallGraphCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph",
		Short: "Compute call graph vectors (Stage C)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runCallGraphStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d call vectors\n", n)
			return nil
		},
	}
}

func newDepContextCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "depcontext",
		Short: "Compute dependency context (Stage D)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runDepContextStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d dependency contexts\n", n)
			return nil
		},
	}
}

func newScoreCmd(loadConfig loader) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score every comparable pair of units (Stage S)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threshold") {
				cfg.Threshold = threshold
			}
			n, err := runScoreStage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d scored pairs\n", n)
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.35, "minimum score to report")
	return cmd
}

func newClusterCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Group scored pairs into clusters (Stage K)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runClusterStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d clusters\n", n)
			return nil
		},
	}
}

func newReportCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Render the markdown report, dependency atlas, and manifest update (Stage R)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := runReportStage(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d report artifacts\n", n)
			return nil
		},
	}
}

func newEmbedCmd(loadConfig loader) *cobra.Command {
	var ollamaURL, model string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Fetch semantic embeddings for ingested purpose statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ollamaURL == "" {
				ollamaURL = cfg.Ollama.URL
			}
			if model == "" {
				model = cfg.Ollama.Model
			}

			var statements []verdict.PurposeStatement
			if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactPurposeStatements, &statements); err != nil {
				return err
			}

			client := embed.NewClient(ollamaURL, model)
			ctx := cmd.Context()
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("%w: %v", core.ErrEmbeddingUnreachable, err)
			}

			embedInputs := make([]embed.PurposeStatement, len(statements))
			for i, s := range statements {
				embedInputs[i] = embed.PurposeStatement{UnitID: s.UnitID.String(), Purpose: s.Purpose}
			}
			results := client.EmbedAll(ctx, embedInputs)
			if _, err := codeunit.WriteArtifact(cfg.OutputDir, core.ArtifactSemanticEmbeddings, results); err != nil {
				return err
			}
			fmt.Printf("wrote %d embeddings (%d skipped)\n", len(results), len(statements)-len(results))
			return nil
		},
	}
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "embedding model (overrides config)")
	return cmd
}

func newIngestPurposesCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-purposes [path]",
		Short: "Validate and copy in externally authored purpose statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return ingest.PurposeStatements(args[0], cfg.OutputDir)
		},
	}
}

func newIngestFindingsCmd(loadConfig loader) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-findings [path]",
		Short: "Validate and copy in externally authored cluster findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return ingest.Findings(args[0], cfg.OutputDir)
		},
	}
}

func loadInspectArtifacts(cfg config.Config) (inspect.Artifacts, error) {
	units, err := loadUnits(cfg)
	if err != nil {
		return inspect.Artifacts{}, err
	}
	a := inspect.Artifacts{Units: codeunit.IndexByID(units)}

	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactStructuralFingerprints, &a.Fingerprints)
	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactTypeSignatures, &a.TypeSigs)
	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactCallGraph, &a.CallVectors)
	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactDependencyContext, &a.DepContexts)
	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactSimilarityMatrix, &a.Pairs)
	codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactClusters, &a.Clusters)
	if codeunit.HasArtifact(cfg.OutputDir, core.ArtifactFindings) {
		codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactFindings, &a.Findings)
	}
	return a, nil
}

func newInspectCmd(loadConfig loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read-only views over a completed run",
	}

	cmd.AddCommand(&cobra.Command{
		Use:  "unit [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := loadInspectArtifacts(cfg)
			if err != nil {
				return err
			}
			return inspect.Unit(os.Stdout, a, args[0])
		},
	})

	var topN int
	similarCmd := &cobra.Command{
		Use:  "similar [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := loadInspectArtifacts(cfg)
			if err != nil {
				return err
			}
			return inspect.Similar(os.Stdout, a, args[0], topN)
		},
	}
	similarCmd.Flags().IntVar(&topN, "top", 10, "number of matches to show")
	cmd.AddCommand(similarCmd)

	cmd.AddCommand(&cobra.Command{
		Use:  "cluster [cluster-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := loadInspectArtifacts(cfg)
			if err != nil {
				return err
			}
			return inspect.Cluster(os.Stdout, a, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:  "consumers [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := loadInspectArtifacts(cfg)
			if err != nil {
				return err
			}
			return inspect.Consumers(os.Stdout, a, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:  "callers [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := loadInspectArtifacts(cfg)
			if err != nil {
				return err
			}
			return inspect.Callers(os.Stdout, a, args[0])
		},
	})

	return cmd
}

func newSearchCmd(loadConfig loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Ad hoc queries over a completed run",
	}

	cmd.AddCommand(&cobra.Command{
		Use:  "calls [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			units, err := loadUnits(cfg)
			if err != nil {
				return err
			}
			return search.Calls(os.Stdout, codeunit.IndexByID(units), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:  "called-by [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			units, err := loadUnits(cfg)
			if err != nil {
				return err
			}
			return search.CalledBy(os.Stdout, codeunit.IndexByID(units), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:  "co-occurs-with [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var depContexts map[string]depcontext.DepContext
			if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactDependencyContext, &depContexts); err != nil {
				return err
			}
			return search.CoOccursWith(os.Stdout, depContexts, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:  "type-like [unit-id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			units, err := loadUnits(cfg)
			if err != nil {
				return err
			}
			var typeSigs map[string]typesig.Signature
			if err := codeunit.ReadArtifact(cfg.OutputDir, core.ArtifactTypeSignatures, &typeSigs); err != nil {
				return err
			}
			return search.TypeLike(os.Stdout, codeunit.IndexByID(units), typeSigs, args[0])
		},
	})

	return cmd
}
