package models

import "strings"

// VariableType is the mgm type code of a variable.
type VariableType string

const (
	VariableContinuous  VariableType = "g" // Gaussian
	VariableCategorical VariableType = "c" // Categorical (nominal or ordinal)
	VariableCount       VariableType = "p" // Poisson
)

// NormalizeVariableType maps free-form type names to a VariableType.
// Unknown values default to VariableContinuous.
func NormalizeVariableType(s string) VariableType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "categorical", "nominal", "ordinal", "binary":
		return VariableCategorical
	case "p", "count", "poisson":
		return VariableCount
	default:
		return VariableContinuous
	}
}

// MeasurementLevel describes how a variable was measured.
type MeasurementLevel string

const (
	LevelContinuous MeasurementLevel = "continuous"
	LevelNominal    MeasurementLevel = "nominal"
	LevelOrdinal    MeasurementLevel = "ordinal"
	LevelCount      MeasurementLevel = "count"
)

// Sign classifies an edge weight.
type Sign string

const (
	SignPositive Sign = "positive"
	SignNegative Sign = "negative"
	SignZero     Sign = "zero"
	SignUnsigned Sign = "unsigned" // categorical blocks with no meaningful direction
)

// NormalizeSign maps a sign name to a Sign. Unknown values default to SignUnsigned.
func NormalizeSign(s string) Sign {
	switch Sign(strings.ToLower(strings.TrimSpace(s))) {
	case SignPositive:
		return SignPositive
	case SignNegative:
		return SignNegative
	case SignZero:
		return SignZero
	default:
		return SignUnsigned
	}
}

// SignOf returns the sign of a weight, treating |w| <= tol as zero.
func SignOf(w, tol float64) Sign {
	switch {
	case w > tol:
		return SignPositive
	case w < -tol:
		return SignNegative
	default:
		return SignZero
	}
}

// Aggregator reduces a parameter block to a single edge weight.
type Aggregator string

const (
	AggregatorL2Norm  Aggregator = "l2_norm"
	AggregatorMean    Aggregator = "mean"
	AggregatorMaxAbs  Aggregator = "max_abs"
	AggregatorMax     Aggregator = "max"
	AggregatorMeanAbs Aggregator = "mean_abs"
	AggregatorSumAbs  Aggregator = "sum_abs"
)

// NormalizeAggregator maps an aggregator name to an Aggregator.
// Unknown values default to AggregatorMaxAbs.
func NormalizeAggregator(s string) Aggregator {
	switch a := Aggregator(strings.ToLower(strings.TrimSpace(s))); a {
	case AggregatorL2Norm, AggregatorMean, AggregatorMaxAbs, AggregatorMax, AggregatorMeanAbs, AggregatorSumAbs:
		return a
	default:
		return AggregatorMaxAbs
	}
}

// SignStrategy decides how an edge sign is derived from its parameter block.
type SignStrategy string

const (
	SignStrategyDominant SignStrategy = "dominant"
	SignStrategyMean     SignStrategy = "mean"
	SignStrategyNone     SignStrategy = "none"
)

// NormalizeSignStrategy defaults unknown values to SignStrategyDominant.
func NormalizeSignStrategy(s string) SignStrategy {
	switch st := SignStrategy(strings.ToLower(strings.TrimSpace(s))); st {
	case SignStrategyDominant, SignStrategyMean, SignStrategyNone:
		return st
	default:
		return SignStrategyDominant
	}
}

// RuleReg is the neighborhood combination rule.
type RuleReg string

const (
	RuleAND RuleReg = "AND"
	RuleOR  RuleReg = "OR"
)

// NormalizeRuleReg defaults unknown values to RuleAND.
func NormalizeRuleReg(s string) RuleReg {
	if RuleReg(strings.ToUpper(strings.TrimSpace(s))) == RuleOR {
		return RuleOR
	}
	return RuleAND
}

// Layout is the suggested graph layout.
type Layout string

const (
	LayoutForce  Layout = "force"
	LayoutCircle Layout = "circle"
	LayoutRandom Layout = "random"
)

// NormalizeLayout defaults unknown values to LayoutForce.
func NormalizeLayout(s string) Layout {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutForce, LayoutCircle, LayoutRandom:
		return l
	default:
		return LayoutForce
	}
}

// EngineMode is how the statistical engine is invoked.
type EngineMode string

const (
	EngineModeSubprocess EngineMode = "subprocess_rscript"
)

// NormalizeEngineMode always yields the only supported mode.
func NormalizeEngineMode(string) EngineMode {
	return EngineModeSubprocess
}

// Status is the outcome recorded in a results document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// MessageLevel is the severity of a Message.
type MessageLevel string

const (
	MessageInfo    MessageLevel = "info"
	MessageWarning MessageLevel = "warning"
	MessageError   MessageLevel = "error"
)
