package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	fitSchema     string
	fitSpec       string
	fitSettings   string
	fitAnalysisID string
	fitOutput     string
	fitTimeout    time.Duration
	fitNoProgress bool
)

var fitCmd = &cobra.Command{
	Use:   "fit <data.csv>",
	Short: "Fit a mixed graphical model via the engine",
	Long: `Fit a mixed graphical model on a CSV dataset.

Schema and spec documents are inferred from the data unless given. The engine
runs in a scratch directory with a timeout; its results.json is validated
against the results contract and written to --output.

Examples:
  hygeia fit data.csv -o results.json
  hygeia fit data.csv --schema schema.json --settings settings.json
  hygeia fit data.csv --schema schema.json --spec model_spec.json --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&fitSchema, "schema", "", "schema document (inferred when empty)")
	fitCmd.Flags().StringVar(&fitSpec, "spec", "", "model spec document (built when empty; requires --schema)")
	fitCmd.Flags().StringVar(&fitSettings, "settings", "", "JSON model settings file")
	fitCmd.Flags().StringVar(&fitAnalysisID, "analysis-id", "", "analysis id (generated when empty)")
	fitCmd.Flags().StringVarP(&fitOutput, "output", "o", "results.json", "results file ('-' for stdout)")
	fitCmd.Flags().DurationVar(&fitTimeout, "timeout", 0, "engine timeout (config default when zero)")
	fitCmd.Flags().BoolVar(&fitNoProgress, "no-progress", false, "disable the progress bar")
}

// fitDocuments resolves the schema and spec for a fit from flags.
func fitDocuments(data *dataset.Dataset) (*models.SchemaDocument, *models.ModelSpec, error) {
	if fitSpec != "" && fitSchema == "" {
		return nil, nil, fmt.Errorf("--spec requires --schema")
	}

	in := service.PrepareInput{AnalysisID: fitAnalysisID}
	settings, err := loadModelSettings(fitSettings)
	if err != nil {
		return nil, nil, err
	}
	in.Settings = settings

	if fitSchema != "" {
		var schema models.SchemaDocument
		if err := contract.ValidateFile(contract.KindSchema, fitSchema); err != nil {
			return nil, nil, err
		}
		if err := readJSONFile(fitSchema, &schema); err != nil {
			return nil, nil, err
		}
		if fitSpec != "" {
			var spec models.ModelSpec
			if err := contract.ValidateFile(contract.KindModelSpec, fitSpec); err != nil {
				return nil, nil, err
			}
			if err := readJSONFile(fitSpec, &spec); err != nil {
				return nil, nil, err
			}
			return &schema, &spec, nil
		}
		in.Variables = schema.Variables
		if in.AnalysisID == "" {
			in.AnalysisID = schema.AnalysisID
		}
	}

	prep, err := session.Prepare(data, in)
	if err != nil {
		return nil, nil, err
	}
	return prep.Schema, prep.Spec, nil
}

func runFit(cmd *cobra.Command, args []string) error {
	data, err := dataset.ReadCSVFile(args[0])
	if err != nil {
		return err
	}
	if n := data.MissingCells(); n > 0 {
		return fmt.Errorf("%w: %d missing cell(s); impute or drop them first", engine.ErrMissingValues, n)
	}

	schema, spec, err := fitDocuments(data)
	if err != nil {
		return err
	}

	var run *engine.Run
	show := !fitNoProgress && interactive()
	err = runWithProgress(cmd.Context(), "fit", show, func(ctx context.Context, onStart func(*service.Run)) error {
		var err error
		run, err = session.Fit(ctx, service.FitInput{
			Data:    data,
			Schema:  schema,
			Spec:    spec,
			Timeout: fitTimeout,
			OnStart: onStart,
		})
		return err
	})
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s %s\n", defaultTheme.headerStyle().Render("Analysis:"), run.Results.AnalysisID)
	fmt.Fprintf(errOut, "  Nodes: %d  Edges: %d  Elapsed: %s\n",
		len(run.Results.Nodes), len(run.Results.Edges), run.Process.Elapsed.Round(time.Millisecond))
	if run.Workdir != "" {
		fmt.Fprintf(errOut, "  Workdir: %s\n", run.Workdir)
	}
	printMessages(errOut, run.Results.Messages)

	return writeJSON(cmd.OutOrStdout(), fitOutput, run.Results)
}
