package dataset

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Count inference thresholds: an all non-negative integer column is count
// data when it has more than countMinUnique distinct values and at least
// countMinUniqueness of its values are distinct.
const (
	countMinUnique     = 20
	countMinUniqueness = 0.10
)

var invalidIDChars = regexp.MustCompile(`[^a-z0-9_\-]`)

// MakeVariableID derives a valid, unique variable id from a column name and
// records it in existing.
func MakeVariableID(column string, existing map[string]struct{}) string {
	id := strings.ToLower(strings.TrimSpace(column))
	id = strings.ReplaceAll(id, " ", "_")
	id = invalidIDChars.ReplaceAllString(id, "")
	id = strings.TrimRight(id, "_")

	if id != "" && id[0] >= '0' && id[0] <= '9' {
		id = "v_" + id
	}
	if id == "" || id[0] == '-' {
		id = "var" + id
	}

	base := id
	for n := 2; ; n++ {
		if _, taken := existing[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
	existing[id] = struct{}{}
	return id
}

// VariableIDs returns the ids MakeVariableID assigns to the dataset columns.
func (d *Dataset) VariableIDs() []string {
	existing := make(map[string]struct{}, len(d.Columns))
	ids := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		ids[i] = MakeVariableID(c, existing)
	}
	return ids
}

// ColumnProfile summarizes the non-missing values of one column.
type ColumnProfile struct {
	Kind     ValueKind `json:"kind"`
	NUnique  int       `json:"n_unique"`
	Examples []string  `json:"examples"`
}

// Profile is a dataset summary used to build the schema.
type Profile struct {
	RowCount    int                      `json:"row_count"`
	ColumnCount int                      `json:"column_count"`
	Missing     models.MissingSummary    `json:"missing"`
	Columns     map[string]ColumnProfile `json:"per_column"`
}

// Profile counts missing values and summarizes each column.
func (d *Dataset) Profile() Profile {
	rows, cols := d.NumRows(), d.NumCols()
	p := Profile{
		RowCount:    rows,
		ColumnCount: cols,
		Missing:     models.MissingSummary{ByVariable: make([]models.VariableMissing, 0, cols)},
		Columns:     make(map[string]ColumnProfile, cols),
	}

	ids := d.VariableIDs()
	for i, name := range d.Columns {
		values := d.Column(i)
		missing := 0
		present := make([]string, 0, len(values))
		for _, v := range values {
			if v == "" {
				missing++
				continue
			}
			present = append(present, v)
		}
		p.Missing.Cells += missing

		rate := 0.0
		if rows > 0 {
			rate = float64(missing) / float64(rows)
		}
		p.Missing.ByVariable = append(p.Missing.ByVariable, models.VariableMissing{
			ID: ids[i], Count: missing, Rate: rate,
		})

		uniq := uniqueInOrder(present)
		p.Columns[name] = ColumnProfile{
			Kind:     kindOf(present),
			NUnique:  len(uniq),
			Examples: uniq[:min(3, len(uniq))],
		}
	}

	if total := rows * cols; total > 0 {
		p.Missing.Rate = float64(p.Missing.Cells) / float64(total)
	}
	return p
}

// ValueKind is the storage kind inferred for a column's values.
type ValueKind string

const (
	KindEmpty  ValueKind = "empty"
	KindBool   ValueKind = "bool"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
)

func kindOf(values []string) ValueKind {
	if len(values) == 0 {
		return KindEmpty
	}
	isBool, isInt, isFloat := true, true, true
	for _, v := range values {
		if isBool && !isBoolWord(v) {
			isBool = false
		}
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
	}
	switch {
	case isBool:
		return KindBool
	case isInt:
		return KindInt
	case isFloat:
		return KindFloat
	default:
		return KindString
	}
}

// isBoolWord accepts only true/false so that 0/1 columns stay integers.
func isBoolWord(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	}
	return false
}

func uniqueInOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// InferVariables proposes a variable descriptor per column:
//
//   - floats are continuous
//   - booleans are two-level nominal
//   - integers with a negative value are continuous
//   - non-negative integers with many distinct values are counts
//   - other integers are ordinal when consecutive, nominal otherwise
//   - anything else is nominal
//
// Columns with no values default to continuous.
func (d *Dataset) InferVariables() []models.Variable {
	ids := d.VariableIDs()
	vars := make([]models.Variable, len(d.Columns))
	for i, name := range d.Columns {
		v := inferColumn(d.Column(i))
		v.ID = ids[i]
		v.Column = name
		v.Label = name
		vars[i] = v
	}
	return vars
}

func continuous() models.Variable {
	return models.Variable{
		MGMType:          models.VariableContinuous,
		MeasurementLevel: models.LevelContinuous,
		Level:            1,
		Encoding:         &models.Encoding{Strategy: models.EncodingIdentity},
	}
}

func inferColumn(cells []string) models.Variable {
	present := make([]string, 0, len(cells))
	for _, c := range cells {
		if c != "" {
			present = append(present, c)
		}
	}

	switch kindOf(present) {
	case KindEmpty, KindFloat:
		return continuous()

	case KindBool:
		return models.Variable{
			MGMType:          models.VariableCategorical,
			MeasurementLevel: models.LevelNominal,
			Level:            2,
			Categories:       []string{"False", "True"},
			Encoding:         &models.Encoding{Strategy: models.EncodingCategoricalCodes},
		}

	case KindInt:
		return inferInt(present)

	default:
		cats := uniqueInOrder(present)
		sort.Strings(cats)
		return models.Variable{
			MGMType:          models.VariableCategorical,
			MeasurementLevel: models.LevelNominal,
			Level:            len(cats),
			Categories:       cats,
			Encoding:         &models.Encoding{Strategy: models.EncodingCategoricalCodes},
		}
	}
}

func inferInt(present []string) models.Variable {
	set := make(map[int64]struct{}, len(present))
	for _, s := range present {
		n, _ := strconv.ParseInt(s, 10, 64)
		if n < 0 {
			return continuous()
		}
		set[n] = struct{}{}
	}

	uniq := make([]int64, 0, len(set))
	for n := range set {
		uniq = append(uniq, n)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	ratio := float64(len(uniq)) / float64(len(present))
	if len(uniq) > countMinUnique && ratio >= countMinUniqueness {
		return models.Variable{
			MGMType:          models.VariableCount,
			MeasurementLevel: models.LevelCount,
			Level:            1,
			Encoding:         &models.Encoding{Strategy: models.EncodingCountInt},
			Constraints:      &models.Constraints{NonNegative: true},
		}
	}

	consecutive := true
	cats := make([]string, len(uniq))
	for i, n := range uniq {
		cats[i] = strconv.FormatInt(n, 10)
		if i > 0 && n-uniq[i-1] != 1 {
			consecutive = false
		}
	}

	v := models.Variable{
		MGMType:          models.VariableCategorical,
		MeasurementLevel: models.LevelNominal,
		Level:            len(uniq),
		Categories:       cats,
		Encoding:         &models.Encoding{Strategy: models.EncodingCategoricalCodes},
	}
	if consecutive {
		v.MeasurementLevel = models.LevelOrdinal
		v.Encoding.Strategy = models.EncodingOrdinalCodes
	}
	return v
}
