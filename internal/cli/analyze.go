package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/raphaelgruber/hygeia-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	analyzeSettings   string
	analyzeAnalysisID string
	analyzeOutDir     string
	analyzeTimeout    time.Duration
	analyzeNoProgress bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <bootnet|nct|lasso> <data.csv>",
	Short: "Run a heavy analysis with guardrailed settings",
	Long: `Run a resource-intensive analysis through its engine script:

  bootnet  edge and centrality stability via bootstrapping
  nct      network comparison test between two groups (requires group_var)
  lasso    cross-validated feature selection (requires target)

Settings are clamped by the guardrails before the engine starts. With
--out-dir the meta document and every result table are written as files.

Examples:
  hygeia analyze bootnet data.csv --settings bootnet.yaml
  hygeia analyze lasso data.csv --settings lasso.yaml --out-dir lasso_out`,
	Args: cobra.ExactArgs(2),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSettings, "settings", "", "YAML or JSON settings file")
	analyzeCmd.Flags().StringVar(&analyzeAnalysisID, "analysis-id", "", "analysis id for the schema and spec")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out-dir", "", "directory for meta.json and result tables")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "engine timeout (config default when zero)")
	analyzeCmd.Flags().BoolVar(&analyzeNoProgress, "no-progress", false, "disable the progress bar")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	analysis, err := guardrail.ParseAnalysis(args[0])
	if err != nil {
		return err
	}
	data, err := dataset.ReadCSVFile(args[1])
	if err != nil {
		return err
	}

	var raw []byte
	if analyzeSettings != "" {
		if raw, err = os.ReadFile(analyzeSettings); err != nil {
			return err
		}
	}
	settings, err := guardrail.DecodeSettings(analysis, raw)
	if err != nil {
		return err
	}

	req := service.AnalysisRequest{
		Analysis: analysis,
		Data:     data,
		Settings: settings,
		Timeout:  analyzeTimeout,
	}
	if analysis != guardrail.AnalysisLasso {
		id := analyzeAnalysisID
		if id == "" {
			if id, err = data.Hash(); err != nil {
				return err
			}
		}
		prep, err := session.Prepare(data, service.PrepareInput{AnalysisID: id, Settings: modelspec.Default()})
		if err != nil {
			return err
		}
		req.Schema, req.Spec = prep.Schema, prep.Spec
	}

	var outcome *service.AnalysisOutcome
	show := !analyzeNoProgress && interactive()
	err = runWithProgress(cmd.Context(), string(analysis), show, func(ctx context.Context, onStart func(*service.Run)) error {
		req.OnStart = onStart
		var err error
		outcome, err = session.RunAnalysis(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printWarnings(cmd.ErrOrStderr(), outcome.Warnings)
	if err := printSettings(w, "Settings:", outcome.Settings); err != nil {
		return err
	}
	if outcome.Cached {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("  (cached run)"))
	}
	fmt.Fprintf(w, "%s\n", defaultTheme.headerStyle().Render("Tables:"))
	for _, name := range outcome.Run.TableNames() {
		t := outcome.Run.Tables[name]
		fmt.Fprintf(w, "  %-28s %d rows x %d columns\n", name, len(t.Rows), len(t.Columns))
	}

	if analyzeOutDir == "" {
		return nil
	}
	return writeAnalysisRun(analyzeOutDir, outcome.Run)
}

// writeAnalysisRun stores the meta document and every table of run under dir.
func writeAnalysisRun(dir string, run *engine.AnalysisRun) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(nil, filepath.Join(dir, string(run.Analysis)+"_meta.json"), run.Meta); err != nil {
		return err
	}
	for _, name := range run.TableNames() {
		if err := writeTable(filepath.Join(dir, name+".csv"), run.Tables[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(path string, t engine.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
