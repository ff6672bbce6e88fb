package dataset

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRead(t *testing.T, csv string) *Dataset {
	t.Helper()
	ds, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return ds
}

func TestMakeVariableID(t *testing.T) {
	tests := []struct {
		column string
		want   string
	}{
		{"Age", "age"},
		{"  Blood Pressure ", "blood_pressure"},
		{"score (%)", "score"},
		{"trailing__", "trailing"},
		{"2nd dose", "v_2nd_dose"},
		{"!!!", "var"},
		{"-x", "var-x"},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got := MakeVariableID(tt.column, map[string]struct{}{})
			assert.Equal(t, tt.want, got)
		})
	}

	existing := map[string]struct{}{}
	assert.Equal(t, "age", MakeVariableID("Age", existing))
	assert.Equal(t, "age_2", MakeVariableID("age", existing))
	assert.Equal(t, "age_3", MakeVariableID("AGE", existing))
}

func TestReadCSV(t *testing.T) {
	ds := mustRead(t, "a,b\n1,x\nNA,\n")
	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, []string{"", ""}, ds.Rows[1])
	assert.Equal(t, 2, ds.MissingCells())

	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.ErrorIs(t, err, ErrRaggedRow)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"))
	assert.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestWriteCSVDeterministic(t *testing.T) {
	ds := mustRead(t, "name,score\n\"Doe, J\",1.5\nNA,2\n")
	b1, err := ds.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "name,score\n\"Doe, J\",1.5\n,2\n", string(b1))

	again := mustRead(t, string(b1))
	b2, err := again.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	h1, err := ds.Hash()
	require.NoError(t, err)
	h2, err := again.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestProfile(t *testing.T) {
	ds := mustRead(t, "A,B\n1,\n2,y\n,y\n3,z\n")
	p := ds.Profile()
	assert.Equal(t, 4, p.RowCount)
	assert.Equal(t, 2, p.ColumnCount)
	assert.Equal(t, 2, p.Missing.Cells)
	assert.InDelta(t, 0.25, p.Missing.Rate, 1e-12)
	require.Len(t, p.Missing.ByVariable, 2)
	assert.Equal(t, models.VariableMissing{ID: "a", Count: 1, Rate: 0.25}, p.Missing.ByVariable[0])
	assert.Equal(t, KindInt, p.Columns["A"].Kind)
	assert.Equal(t, 2, p.Columns["B"].NUnique)
	assert.Equal(t, []string{"y", "z"}, p.Columns["B"].Examples)
}

func countColumn(n int) string {
	var sb strings.Builder
	sb.WriteString("visits\n")
	for i := range n {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	return sb.String()
}

func TestInferVariables(t *testing.T) {
	tests := []struct {
		name  string
		csv   string
		typ   models.VariableType
		level models.MeasurementLevel
		n     int
	}{
		{"float", "x\n1.5\n2\n", models.VariableContinuous, models.LevelContinuous, 1},
		{"negative ints", "x\n-1\n2\n5\n", models.VariableContinuous, models.LevelContinuous, 1},
		{"bool", "x\ntrue\nFalse\n", models.VariableCategorical, models.LevelNominal, 2},
		{"consecutive ints", "x\n1\n2\n3\n2\n", models.VariableCategorical, models.LevelOrdinal, 3},
		{"gapped ints", "x\n1\n5\n9\n", models.VariableCategorical, models.LevelNominal, 3},
		{"strings", "x\nb\na\nb\n", models.VariableCategorical, models.LevelNominal, 2},
		{"all missing", "x\nNA\n\n", models.VariableContinuous, models.LevelContinuous, 1},
		{"counts", countColumn(30), models.VariableCount, models.LevelCount, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := mustRead(t, tt.csv).InferVariables()
			require.Len(t, vars, 1)
			assert.Equal(t, tt.typ, vars[0].MGMType)
			assert.Equal(t, tt.level, vars[0].MeasurementLevel)
			assert.Equal(t, tt.n, vars[0].Level)
		})
	}

	vars := mustRead(t, "Group\nb\na\nb\n").InferVariables()
	assert.Equal(t, []string{"a", "b"}, vars[0].Categories)
	assert.Equal(t, "group", vars[0].ID)
	assert.Equal(t, "Group", vars[0].Label)

	counts := mustRead(t, countColumn(30)).InferVariables()
	require.NotNil(t, counts[0].Constraints)
	assert.True(t, counts[0].Constraints.NonNegative)
}

func TestBuildSchemaValidates(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ds := mustRead(t, "Age,Group,Score\n31,a,1.2\n45,b,3.4\n28,a,2.2\n")

	doc, err := BuildSchema(ds, SchemaOptions{
		AnalysisID: "an-1",
		Meta:       Meta{Name: "demo"},
		Now:        func() time.Time { return fixed },
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", doc.CreatedAt)
	assert.Equal(t, "demo", doc.Dataset.Name)
	assert.Empty(t, doc.Warnings)
	require.NoError(t, contract.Validate(contract.KindSchema, doc))
}

func TestBuildSchemaMissingWarning(t *testing.T) {
	ds := mustRead(t, "a,b\n1,\n2,3\n")
	doc, err := BuildSchema(ds, SchemaOptions{})
	require.NoError(t, err)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, CodeMissingData, doc.Warnings[0].Code)
	require.NoError(t, contract.Validate(contract.KindSchema, doc))
}

func TestBuildSchemaVariableOverride(t *testing.T) {
	ds := mustRead(t, "a,b\n1,2\n")
	_, err := BuildSchema(ds, SchemaOptions{Variables: []models.Variable{{ID: "a"}}})
	assert.Error(t, err)

	vars := ds.InferVariables()
	vars[0].DomainGroup = "g1"
	doc, err := BuildSchema(ds, SchemaOptions{Variables: vars})
	require.NoError(t, err)
	assert.Equal(t, "g1", doc.Variables[0].DomainGroup)
}
