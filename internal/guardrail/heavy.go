package guardrail

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Analysis names an optional resource-intensive analysis.
type Analysis string

const (
	AnalysisBootnet Analysis = "bootnet" // bootstrap edge/centrality stability
	AnalysisNCT     Analysis = "nct"     // permutation network comparison
	AnalysisLasso   Analysis = "lasso"   // cross-validated feature selection
)

// ErrUnknownAnalysis is returned by ParseAnalysis for unsupported names.
var ErrUnknownAnalysis = errors.New("unknown analysis")

// ParseAnalysis converts a name into an Analysis.
func ParseAnalysis(s string) (Analysis, error) {
	switch a := Analysis(strings.ToLower(strings.TrimSpace(s))); a {
	case AnalysisBootnet, AnalysisNCT, AnalysisLasso:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAnalysis, s)
	}
}

// Normalize applies the guardrails of analysis a to settings, which must be
// the settings type of a. rows and cols are only used by lasso.
func Normalize(a Analysis, settings any, unlocked bool, rows, cols int) (any, []Warning, error) {
	switch v := settings.(type) {
	case BootnetSettings:
		if a == AnalysisBootnet {
			out, ws := NormalizeBootnet(v, unlocked)
			return out, ws, nil
		}
	case NCTSettings:
		if a == AnalysisNCT {
			out, ws := NormalizeNCT(v, unlocked)
			return out, ws, nil
		}
	case LassoSettings:
		if a == AnalysisLasso {
			out, ws := NormalizeLasso(v, unlocked, rows, cols)
			return out, ws, nil
		}
	}
	return nil, nil, fmt.Errorf("settings %T do not match analysis %q", settings, a)
}

// DecodeSettings parses raw YAML or JSON settings into the settings type of a.
// Empty input yields zero settings, which normalize to the defaults.
func DecodeSettings(a Analysis, raw []byte) (any, error) {
	var (
		out any
		err error
	)
	switch a {
	case AnalysisBootnet:
		var s BootnetSettings
		err = yaml.Unmarshal(raw, &s)
		out = s
	case AnalysisNCT:
		var s NCTSettings
		err = yaml.Unmarshal(raw, &s)
		out = s
	case AnalysisLasso:
		var s LassoSettings
		err = yaml.Unmarshal(raw, &s)
		out = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalysis, a)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s settings: %w", a, err)
	}
	return out, nil
}

// Bootstrap limits.
var (
	BootnetBoots = IntLimit{Min: 1, Default: 200, Safe: 500, Hard: 2000}
	BootnetCores = IntLimit{Min: 1, Default: 1, Safe: 1, Hard: 2}
	BootnetCaseN = IntLimit{Min: 2, Default: 10, Safe: 50, Hard: 50}
)

// Bootstrap defaults for the case-dropping range and correlation level.
const (
	DefaultCaseMin  = 0.25
	DefaultCaseMax  = 0.75
	DefaultCorLevel = 0.7
)

// BootnetSettings configures bootstrap stability analysis.
type BootnetSettings struct {
	NBootsNP   int      `json:"n_boots_np,omitempty" yaml:"n_boots_np"`
	NBootsCase int      `json:"n_boots_case,omitempty" yaml:"n_boots_case"`
	NCores     int      `json:"n_cores,omitempty" yaml:"n_cores"`
	CaseMin    *float64 `json:"case_min,omitempty" yaml:"case_min"`
	CaseMax    *float64 `json:"case_max,omitempty" yaml:"case_max"`
	CaseN      int      `json:"case_n,omitempty" yaml:"case_n"`
	CorLevel   float64  `json:"cor_level,omitempty" yaml:"cor_level"`
}

// NormalizeBootnet clamps bootstrap settings. Unset fields take their defaults.
func NormalizeBootnet(s BootnetSettings, unlocked bool) (BootnetSettings, []Warning) {
	const prefix = "BOOTNET"
	var ws []Warning
	add := func(w *Warning) {
		if w != nil {
			ws = append(ws, *w)
		}
	}

	var w *Warning
	out := s
	out.NBootsNP, w = clampInt(prefix, "n_boots_np", s.NBootsNP, BootnetBoots, unlocked)
	add(w)
	out.NBootsCase, w = clampInt(prefix, "n_boots_case", s.NBootsCase, BootnetBoots, unlocked)
	add(w)
	out.NCores, w = clampInt(prefix, "n_cores", s.NCores, BootnetCores, unlocked)
	add(w)
	out.CaseN, w = clampInt(prefix, "case_n", s.CaseN, BootnetCaseN, unlocked)
	add(w)

	caseMin, caseMax := DefaultCaseMin, DefaultCaseMax
	if s.CaseMin != nil {
		caseMin = clampUnit(*s.CaseMin)
	}
	if s.CaseMax != nil {
		caseMax = clampUnit(*s.CaseMax)
	}
	if caseMin >= caseMax {
		caseMin, caseMax = DefaultCaseMin, DefaultCaseMax
		ws = append(ws, Warning{
			Level: models.MessageWarning,
			Code:  prefix + "_CASE_RANGE_FIXED",
			Field: "case_min",
			Message: fmt.Sprintf("case_min must be < case_max. Reset to defaults (%.2f, %.2f).",
				DefaultCaseMin, DefaultCaseMax),
		})
	}
	out.CaseMin, out.CaseMax = &caseMin, &caseMax

	if s.CorLevel == 0 {
		out.CorLevel = DefaultCorLevel
	} else {
		out.CorLevel = clampUnit(s.CorLevel)
	}

	return out, ws
}

// RequiresUnlock reports whether the raw settings exceed any safe ceiling.
func (s BootnetSettings) RequiresUnlock() bool {
	return s.NBootsNP > BootnetBoots.Safe ||
		s.NBootsCase > BootnetBoots.Safe ||
		s.NCores > BootnetCores.Safe
}

// NCTMode selects the permutation test implementation.
type NCTMode string

const (
	NCTModeAuto    NCTMode = "auto"
	NCTModePermMGM NCTMode = "perm_mgm"
	NCTModeNCTPkg  NCTMode = "nct_pkg"
)

// Permutation comparison limits.
var (
	NCTPermutations = IntLimit{Min: 1, Default: 200, Safe: 500, Hard: 5000}
	NCTCores        = IntLimit{Min: 1, Default: 1, Safe: 1, Hard: 2}
)

// NCTEdgeTestsMaxPerms is the permutation count above which edge tests need an unlock.
const NCTEdgeTestsMaxPerms = 200

// NCTSettings configures permutation network comparison.
type NCTSettings struct {
	Permutations int     `json:"permutations,omitempty" yaml:"permutations"`
	NCores       int     `json:"n_cores,omitempty" yaml:"n_cores"`
	EdgeTests    bool    `json:"edge_tests,omitempty" yaml:"edge_tests"`
	Mode         NCTMode `json:"mode,omitempty" yaml:"mode"`
	GroupVar     string  `json:"group_var,omitempty" yaml:"group_var"`
}

// NormalizeNCT clamps permutation comparison settings.
func NormalizeNCT(s NCTSettings, unlocked bool) (NCTSettings, []Warning) {
	const prefix = "NCT"
	var ws []Warning
	add := func(w *Warning) {
		if w != nil {
			ws = append(ws, *w)
		}
	}

	var w *Warning
	out := s
	out.Permutations, w = clampInt(prefix, "permutations", s.Permutations, NCTPermutations, unlocked)
	add(w)
	out.NCores, w = clampInt(prefix, "n_cores", s.NCores, NCTCores, unlocked)
	add(w)

	if out.EdgeTests && out.Permutations > NCTEdgeTestsMaxPerms {
		if !unlocked || out.Permutations > NCTPermutations.Safe {
			out.EdgeTests = false
			ws = append(ws, Warning{
				Level: models.MessageWarning,
				Code:  prefix + "_EDGE_TESTS_DISABLED",
				Field: "edge_tests",
				Message: fmt.Sprintf("Edge tests disabled (permutations>%d is too expensive).",
					NCTEdgeTestsMaxPerms),
			})
		} else {
			ws = append(ws, Warning{
				Level:   models.MessageInfo,
				Code:    prefix + "_EDGE_TESTS_WARNING",
				Field:   "edge_tests",
				Message: "Edge tests enabled with advanced unlock. This may be slow.",
			})
		}
	}

	switch out.Mode {
	case NCTModeAuto, NCTModePermMGM, NCTModeNCTPkg:
	case "":
		out.Mode = NCTModeAuto
	default:
		ws = append(ws, Warning{
			Level:   models.MessageWarning,
			Code:    prefix + "_MODE_INVALID",
			Field:   "mode",
			Message: fmt.Sprintf("Invalid mode %q. Reset to %q.", out.Mode, NCTModeAuto),
		})
		out.Mode = NCTModeAuto
	}

	return out, ws
}

// RequiresUnlock reports whether the raw settings exceed any safe ceiling.
func (s NCTSettings) RequiresUnlock() bool {
	return s.Permutations > NCTPermutations.Safe ||
		s.NCores > NCTCores.Safe ||
		(s.EdgeTests && s.Permutations > NCTEdgeTestsMaxPerms)
}

// Feature selection limits.
var (
	LassoFolds    = IntLimit{Min: 2, Default: 5, Safe: 10, Hard: 20}
	LassoFeatures = IntLimit{Min: 1, Default: 30, Safe: 100, Hard: 300}
)

// High-dimension heuristics for feature selection.
const (
	LassoHighDimFeatures = 500
	LassoHighDimRows     = 200
	DefaultLassoAlpha    = 1.0
)

// LassoSettings configures cross-validated feature selection.
type LassoSettings struct {
	Target      string   `json:"target,omitempty" yaml:"target"`
	NFolds      int      `json:"nfolds,omitempty" yaml:"nfolds"`
	MaxFeatures int      `json:"max_features,omitempty" yaml:"max_features"`
	Alpha       *float64 `json:"alpha,omitempty" yaml:"alpha"`
}

// NormalizeLasso clamps feature selection settings. rows and cols describe the
// dataset; a non-positive value skips the high-dimension check.
func NormalizeLasso(s LassoSettings, unlocked bool, rows, cols int) (LassoSettings, []Warning) {
	const prefix = "LASSO"
	var ws []Warning
	add := func(w *Warning) {
		if w != nil {
			ws = append(ws, *w)
		}
	}

	var w *Warning
	out := s
	out.NFolds, w = clampInt(prefix, "nfolds", s.NFolds, LassoFolds, unlocked)
	add(w)
	out.MaxFeatures, w = clampInt(prefix, "max_features", s.MaxFeatures, LassoFeatures, unlocked)
	add(w)

	alpha := DefaultLassoAlpha
	if s.Alpha != nil {
		alpha = clampUnit(*s.Alpha)
		if alpha != *s.Alpha {
			ws = append(ws, Warning{
				Level:   models.MessageWarning,
				Code:    prefix + "_ALPHA_CLAMPED",
				Field:   "alpha",
				Message: fmt.Sprintf("alpha=%g is outside [0, 1]; clamped to %g.", *s.Alpha, alpha),
			})
		}
	}
	out.Alpha = &alpha

	if rows > 0 && cols > 0 {
		p := cols - 1 // the target is not a feature
		if p > LassoHighDimFeatures && rows < LassoHighDimRows {
			ws = append(ws, Warning{
				Level:   models.MessageWarning,
				Code:    prefix + "_HIGH_DIMENSION",
				Message: fmt.Sprintf("High dimensionality detected (p=%d, n=%d). Results may be unstable.", p, rows),
			})
		}
	}

	return out, ws
}

// RequiresUnlock reports whether the raw settings exceed any safe ceiling.
func (s LassoSettings) RequiresUnlock() bool {
	return s.NFolds > LassoFolds.Safe || s.MaxFeatures > LassoFeatures.Safe
}
