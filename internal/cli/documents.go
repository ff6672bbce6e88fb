package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/hygeia-go/internal/cache"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/engine"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/raphaelgruber/hygeia-go/internal/modelspec"
	"github.com/raphaelgruber/hygeia-go/internal/service"
	"github.com/spf13/cobra"
)

var (
	docOutput     string
	docAnalysisID string
	docName       string
	docSource     string
	specData      string
	specSettings  string
)

var validateCmd = &cobra.Command{
	Use:   "validate <kind> <file>",
	Short: "Validate a document against its contract",
	Long: `Validate a JSON document against the schema, model_spec or results contract.

Every violation is listed with its JSON pointer. The command fails when the
document is invalid.

Examples:
  hygeia validate schema schema.json
  hygeia validate results results.json`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

var schemaCmd = &cobra.Command{
	Use:   "schema <data.csv>",
	Short: "Infer a schema document from a CSV dataset",
	Long: `Profile a CSV dataset, infer variable types and write a schema document.

Review the inferred variables (mgm_type, measurement_level, domain_group)
before fitting; the edited file can be passed to 'hygeia spec' and 'hygeia fit'.

Examples:
  hygeia schema data.csv -o schema.json
  hygeia schema data.csv --analysis-id study-1 --name "Wave 1"`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

var specCmd = &cobra.Command{
	Use:   "spec <schema.json>",
	Short: "Build a model spec for a schema",
	Long: `Build a model_spec document for a schema, applying defaults and clamping
user settings. With --data the spec records the dataset hash.

Examples:
  hygeia spec schema.json -o model_spec.json
  hygeia spec schema.json --data data.csv --settings settings.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSpec,
}

func init() {
	for _, c := range []*cobra.Command{schemaCmd, specCmd} {
		c.Flags().StringVarP(&docOutput, "output", "o", "-", "output file ('-' for stdout)")
		c.Flags().StringVar(&docAnalysisID, "analysis-id", "", "analysis id (generated when empty)")
	}
	schemaCmd.Flags().StringVar(&docName, "name", "", "dataset name")
	schemaCmd.Flags().StringVar(&docSource, "source", "", "dataset source")

	specCmd.Flags().StringVar(&specData, "data", "", "CSV dataset to hash into the spec")
	specCmd.Flags().StringVar(&specSettings, "settings", "", "JSON model settings file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	kind, err := contract.ParseKind(args[0])
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = session.Validate(kind, raw)
	var ve *contract.ValidationError
	switch {
	case err == nil:
		fmt.Fprintln(out, defaultTheme.completedStyle().Render(fmt.Sprintf("✓ %s is a valid %s document", args[1], kind)))
		return nil
	case errors.As(err, &ve):
		fmt.Fprintln(out, defaultTheme.errorStyle().Render(fmt.Sprintf("✗ %s: %d violation(s)", args[1], len(ve.Errors))))
		for _, line := range ve.Lines() {
			fmt.Fprintf(out, "  • %s\n", line)
		}
		return fmt.Errorf("%s is not a valid %s document", args[1], kind)
	default:
		return err
	}
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := dataset.ReadCSVFile(args[0])
	if err != nil {
		return err
	}

	prep, err := session.Prepare(data, service.PrepareInput{
		AnalysisID: docAnalysisID,
		Meta:       dataset.Meta{Name: docName, Source: docSource},
		Settings:   modelspec.Default(),
	})
	if err != nil {
		return err
	}

	if docOutput != "-" {
		printMessages(cmd.ErrOrStderr(), prep.Schema.Warnings)
	}
	return writeJSON(cmd.OutOrStdout(), docOutput, prep.Schema)
}

func runSpec(cmd *cobra.Command, args []string) error {
	var schema models.SchemaDocument
	if err := contract.ValidateFile(contract.KindSchema, args[0]); err != nil {
		return err
	}
	if err := readJSONFile(args[0], &schema); err != nil {
		return err
	}

	settings, err := loadModelSettings(specSettings)
	if err != nil {
		return err
	}

	schemaBytes, err := engine.EncodeDocument(&schema)
	if err != nil {
		return err
	}
	opts := modelspec.BuildOptions{
		AnalysisID:   docAnalysisID,
		SchemaSHA256: cache.SHA256Hex(schemaBytes),
	}
	if specData != "" {
		data, err := dataset.ReadCSVFile(specData)
		if err != nil {
			return err
		}
		if opts.DataSHA256, err = data.SHA256(); err != nil {
			return err
		}
	}

	spec := modelspec.Build(&schema, settings, opts)
	if err := session.Validate(contract.KindModelSpec, spec); err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), docOutput, spec)
}

// loadModelSettings reads JSON model settings over the defaults. An empty
// path yields the defaults.
func loadModelSettings(path string) (modelspec.Settings, error) {
	if path == "" {
		return modelspec.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return modelspec.Settings{}, err
	}
	return modelspec.Decode(raw)
}
