// Package models defines the contract documents exchanged with the network engine
// and the derived analytics computed from them.
package models

import "time"

// Contract versions written by this module.
const (
	SchemaVersion  = "0.1.0"
	SpecVersion    = "0.1.0"
	ResultVersion  = "0.1.0"
	DerivedVersion = "0.1.0"
)

// Locked field values. Builders force these regardless of caller input.
const (
	LambdaSelectionEBIC       = "EBIC"
	MissingPolicyWarnAndAbort = "warn_and_abort"
)

// TimestampLayout is the UTC timestamp format used in every document.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Timestamp formats t in UTC using TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Message is a structured diagnostic attached to a document.
type Message struct {
	Level   MessageLevel `json:"level"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

// EncodingStrategy is how a variable's values are encoded for the engine.
type EncodingStrategy string

const (
	EncodingIdentity         EncodingStrategy = "identity"
	EncodingCategoricalCodes EncodingStrategy = "categorical_codes"
	EncodingOrdinalCodes     EncodingStrategy = "ordinal_codes"
	EncodingCountInt         EncodingStrategy = "count_int"
)

// Encoding describes how a variable is encoded for the engine.
type Encoding struct {
	Strategy EncodingStrategy `json:"strategy"`
}

// Constraints are optional value constraints on a variable.
type Constraints struct {
	NonNegative bool `json:"nonnegative,omitempty"`
}

// Variable describes one column of the dataset.
type Variable struct {
	ID               string           `json:"id"`
	Column           string           `json:"column"`
	MGMType          VariableType     `json:"mgm_type"`
	MeasurementLevel MeasurementLevel `json:"measurement_level"`
	Level            int              `json:"level"` // cardinality for categorical, 1 otherwise
	Label            string           `json:"label,omitempty"`
	DomainGroup      string           `json:"domain_group,omitempty"`
	Categories       []string         `json:"categories,omitempty"`
	Encoding         *Encoding        `json:"encoding,omitempty"`
	Constraints      *Constraints     `json:"constraints,omitempty"`
}

// VariableMissing is the missing-value count of one variable.
type VariableMissing struct {
	ID    string  `json:"id"`
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

// MissingSummary aggregates missing values across the dataset.
type MissingSummary struct {
	Cells      int               `json:"cells"`
	Rate       float64           `json:"rate"`
	ByVariable []VariableMissing `json:"by_variable"`
}

// DatasetInfo describes the shape of the dataset.
type DatasetInfo struct {
	RowCount    int            `json:"row_count"`
	ColumnCount int            `json:"column_count"`
	Missing     MissingSummary `json:"missing"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Source      string         `json:"source,omitempty"`
}

// SchemaDocument is the validated description of a dataset.
type SchemaDocument struct {
	SchemaVersion string      `json:"schema_version"`
	AnalysisID    string      `json:"analysis_id,omitempty"`
	CreatedAt     string      `json:"created_at"`
	Dataset       DatasetInfo `json:"dataset"`
	Variables     []Variable  `json:"variables"`
	Warnings      []Message   `json:"warnings,omitempty"`
}

// SpecInput links a model spec to its schema and data.
type SpecInput struct {
	SchemaRef    string `json:"schema_ref"`
	SchemaSHA256 string `json:"schema_sha256,omitempty"`
	DataSHA256   string `json:"data_sha256,omitempty"`
}

// SpecEngine names the engine and how it is invoked.
type SpecEngine struct {
	Name string     `json:"name"`
	Mode EngineMode `json:"mode"`
}

// Regularization holds the penalized-likelihood settings.
type Regularization struct {
	LambdaSelection string  `json:"lambda_selection"` // locked to EBIC
	EBICGamma       float64 `json:"ebic_gamma"`
	Alpha           float64 `json:"alpha"`
}

// MGMSettings configures the mixed graphical model fit.
type MGMSettings struct {
	K                int            `json:"k"`
	Regularization   Regularization `json:"regularization"`
	RuleReg          RuleReg        `json:"rule_reg"`
	Overparameterize bool           `json:"overparameterize"`
	ScaleGaussian    bool           `json:"scale_gaussian"`
	SignInfo         bool           `json:"sign_info"`
}

// EdgeMapping controls how parameter blocks become edges.
type EdgeMapping struct {
	Aggregator    Aggregator   `json:"aggregator"`
	SignStrategy  SignStrategy `json:"sign_strategy"`
	ZeroTolerance float64      `json:"zero_tolerance"`
}

// VisualizationSettings are rendering hints carried with the spec.
type VisualizationSettings struct {
	EdgeThreshold float64 `json:"edge_threshold"`
	Layout        Layout  `json:"layout"`
}

// CentralitySettings configure engine-side centrality.
type CentralitySettings struct {
	Compute            bool `json:"compute"`
	Weighted           bool `json:"weighted"`
	UseAbsoluteWeights bool `json:"use_absolute_weights"`
}

// MissingPolicy is how missing values are handled. Locked to warn_and_abort.
type MissingPolicy struct {
	Action string `json:"action"`
}

// ModelSpec is the validated model specification document.
type ModelSpec struct {
	SpecVersion   string                `json:"spec_version"`
	AnalysisID    string                `json:"analysis_id"`
	CreatedAt     string                `json:"created_at"`
	Input         SpecInput             `json:"input"`
	Engine        SpecEngine            `json:"engine"`
	RandomSeed    int                   `json:"random_seed"`
	MGM           MGMSettings           `json:"mgm"`
	EdgeMapping   EdgeMapping           `json:"edge_mapping"`
	Visualization VisualizationSettings `json:"visualization"`
	Centrality    CentralitySettings    `json:"centrality"`
	MissingPolicy MissingPolicy         `json:"missing_policy"`
}

// EngineInfo identifies the engine that produced a results document.
type EngineInfo struct {
	Name            string            `json:"name"`
	RVersion        string            `json:"r_version,omitempty"`
	PackageVersions map[string]string `json:"package_versions,omitempty"`
}

// ResultsInput records the hashes of the inputs the engine saw.
type ResultsInput struct {
	SchemaSHA256 string `json:"schema_sha256,omitempty"`
	SpecSHA256   string `json:"spec_sha256,omitempty"`
	DataSHA256   string `json:"data_sha256,omitempty"`
}

// Node is one variable in the fitted network.
type Node struct {
	ID               string           `json:"id"`
	Column           string           `json:"column,omitempty"`
	Label            string           `json:"label,omitempty"`
	DomainGroup      string           `json:"domain_group,omitempty"`
	MGMType          VariableType     `json:"mgm_type,omitempty"`
	MeasurementLevel MeasurementLevel `json:"measurement_level,omitempty"`
	Level            int              `json:"level,omitempty"`
}

// BlockSummary summarizes the parameter block behind an edge.
type BlockSummary struct {
	NParams int     `json:"n_params"`
	L2Norm  float64 `json:"l2_norm"`
	Mean    float64 `json:"mean"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	MaxAbs  float64 `json:"max_abs"`
}

// Edge is an undirected weighted connection between two nodes.
type Edge struct {
	Source       string       `json:"source"`
	Target       string       `json:"target"`
	Weight       float64      `json:"weight"`
	Sign         Sign         `json:"sign"`
	BlockSummary BlockSummary `json:"block_summary"`
}

// Results is the validated output of one engine run. It is never mutated
// after the engine bridge returns it.
type Results struct {
	ResultVersion string        `json:"result_version"`
	AnalysisID    string        `json:"analysis_id"`
	GeneratedAt   string        `json:"generated_at,omitempty"`
	Status        Status        `json:"status"`
	Engine        EngineInfo    `json:"engine"`
	Input         *ResultsInput `json:"input,omitempty"`
	Nodes         []Node        `json:"nodes"`
	Edges         []Edge        `json:"edges"`
	Messages      []Message     `json:"messages"`
}

// ResolveAnalysisID picks the analysis identity with priority
// results > spec > schema. Nil documents are skipped.
func ResolveAnalysisID(results *Results, spec *ModelSpec, schema *SchemaDocument) string {
	if results != nil && results.AnalysisID != "" {
		return results.AnalysisID
	}
	if spec != nil && spec.AnalysisID != "" {
		return spec.AnalysisID
	}
	if schema != nil && schema.AnalysisID != "" {
		return schema.AnalysisID
	}
	return ""
}
