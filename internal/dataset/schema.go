package dataset

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// CodeMissingData flags a schema built from a dataset with missing values.
const CodeMissingData = "MISSING_DATA_DETECTED"

// Meta is optional descriptive metadata copied into the schema.
type Meta struct {
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Source      string `json:"source,omitempty" yaml:"source"`
}

// SchemaOptions configures BuildSchema.
type SchemaOptions struct {
	AnalysisID string
	Meta       Meta
	// Variables overrides the inferred descriptors. They must describe the
	// dataset columns in order.
	Variables []models.Variable
	Now       func() time.Time
}

// BuildSchema describes d as a schema document. The result still needs
// contract validation.
func BuildSchema(d *Dataset, opts SchemaOptions) (*models.SchemaDocument, error) {
	vars := opts.Variables
	if vars == nil {
		vars = d.InferVariables()
	} else if len(vars) != d.NumCols() {
		return nil, fmt.Errorf("build schema: %d variables for %d columns", len(vars), d.NumCols())
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	profile := d.Profile()
	doc := &models.SchemaDocument{
		SchemaVersion: models.SchemaVersion,
		AnalysisID:    opts.AnalysisID,
		CreatedAt:     models.Timestamp(now()),
		Dataset: models.DatasetInfo{
			RowCount:    profile.RowCount,
			ColumnCount: profile.ColumnCount,
			Missing:     profile.Missing,
			Name:        opts.Meta.Name,
			Description: opts.Meta.Description,
			Source:      opts.Meta.Source,
		},
		Variables: vars,
	}

	if profile.Missing.Rate > 0 {
		doc.Warnings = append(doc.Warnings, models.Message{
			Level: models.MessageWarning,
			Code:  CodeMissingData,
			Message: "Missing values detected. Hygeia-Graph does not impute; " +
				"please preprocess (e.g., MICE) before modeling.",
		})
	}
	return doc, nil
}
