package export

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/statement-flow/internal/model"
)

func rows(t *testing.T, f *xlsx.File, name string) [][]string {
	t.Helper()
	sheet, ok := f.Sheet[name]
	require.True(t, ok, "sheet %s missing", name)
	var out [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out
}

func sampleData() RunData {
	ts := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	return RunData{
		Run: model.Run{
			ID:          "run-1",
			Status:      model.RunStatusFailed,
			Retries:     2,
			InputPath:   "runs/run-1/input.pdf",
			DiagramPath: "runs/run-1/diagram-3.png",
			StartedAt:   ts,
			UpdatedAt:   ts.Add(time.Minute),
		},
		Flows: []model.Flow{
			{Source: "Revenue", Target: "Gross Profit", Amount: 1000, Category: model.CategoryRevenue,
				Metadata: &model.FlowMetadata{LineItem: "Net sales", StatementSection: "Income"}},
			{Source: "Gross Profit", Target: "Opex", Amount: 400.5, Category: model.CategoryExpense},
		},
		Verification: &model.VerificationRecord{
			Attempt: 3,
			Report: model.VerificationReport{
				OverallAccuracy: 0.5,
				FlowsVerified:   2,
				FlowsTotal:      2,
				Discrepancies: []model.Discrepancy{
					model.NewDiscrepancy("Revenue -> Gross Profit", 1000, 900),
					{Flow: "Gross Profit -> Opex", Expected: 0, Actual: 1, PercentageError: model.Percent(math.Inf(1))},
				},
				ConfidenceScore: 0.8,
				Reasoning:       "two bands mislabelled",
			},
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleData()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	assert.Equal(t, SheetSummary, f.Sheets[0].Name)

	summary := rows(t, f, SheetSummary)
	assert.Equal(t, []string{"Run ID", "run-1"}, summary[0])
	assert.Equal(t, []string{"Status", "failed"}, summary[1])
	assert.Equal(t, []string{"Retries", "2"}, summary[2])
	assert.Equal(t, []string{"Started", "2026-04-01T09:30:00Z"}, summary[3])
	assert.Contains(t, summary, []string{"Passed", "no"})
	assert.Contains(t, summary, []string{"Verification Attempt", "3"})
	assert.Contains(t, summary, []string{"Reasoning", "two bands mislabelled"})

	flows := rows(t, f, SheetFlows)
	require.Len(t, flows, 3)
	assert.Equal(t, flowHeader, flows[0])
	assert.Equal(t, []string{"Revenue", "Gross Profit", "1000", "revenue", "Net sales", "Income"}, flows[1])
	assert.Equal(t, []string{"Gross Profit", "Opex", "400.5", "expense"}, flows[2][:4])

	disc := rows(t, f, SheetDiscrepancies)
	require.Len(t, disc, 3)
	assert.Equal(t, discrepancyHeader, disc[0])
	assert.Equal(t, []string{"Revenue -> Gross Profit", "1000", "900", "10"}, disc[1])
	assert.Equal(t, "Infinity", disc[2][3])
}

func TestWriteXLSX_NoVerification(t *testing.T) {
	data := sampleData()
	data.Verification = nil
	data.Run.Error = model.NewPipelineError(model.ErrCodeGeneration, model.StageGeneration, assert.AnError)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, data))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)

	summary := rows(t, f, SheetSummary)
	for _, r := range summary {
		assert.NotEqual(t, "Passed", r[0])
	}
	assert.Contains(t, summary[len(summary)-1][1], "GENERATION_ERROR [generation]")
	assert.Len(t, rows(t, f, SheetDiscrepancies), 1)
}
