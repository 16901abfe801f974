// Package export writes a run's flows and verification outcome to an XLSX
// workbook.
package export

import (
	"io"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/statement-flow/internal/model"
)

// Sheet names.
const (
	SheetSummary       = "Summary"
	SheetFlows         = "Flows"
	SheetDiscrepancies = "Discrepancies"
)

var flowHeader = []string{"Source", "Target", "Amount", "Category", "Line Item", "Statement Section"}

var discrepancyHeader = []string{"Flow", "Expected", "Actual", "Error %"}

// RunData is everything the workbook shows about one run. Verification is
// nil when no attempt was recorded.
type RunData struct {
	Run          model.Run
	Flows        []model.Flow
	Verification *model.VerificationRecord
}

// WriteXLSX writes data as a three-sheet workbook to w.
func WriteXLSX(w io.Writer, data RunData) error {
	f := xlsx.NewFile()

	if err := writeSummary(f, data); err != nil {
		return err
	}
	if err := writeFlows(f, data.Flows); err != nil {
		return err
	}
	var discrepancies []model.Discrepancy
	if data.Verification != nil {
		discrepancies = data.Verification.Report.Discrepancies
	}
	if err := writeDiscrepancies(f, discrepancies); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

func writeSummary(f *xlsx.File, data RunData) error {
	sheet, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}

	addPair := func(key string, set func(*xlsx.Cell)) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		set(row.AddCell())
	}
	str := func(v string) func(*xlsx.Cell) { return func(c *xlsx.Cell) { c.SetString(v) } }

	addPair("Run ID", str(data.Run.ID))
	addPair("Status", str(string(data.Run.Status)))
	addPair("Retries", func(c *xlsx.Cell) { c.SetInt(data.Run.Retries) })
	addPair("Started", str(data.Run.StartedAt.UTC().Format(time.RFC3339)))
	addPair("Updated", str(data.Run.UpdatedAt.UTC().Format(time.RFC3339)))
	addPair("Input", str(data.Run.InputPath))
	addPair("Diagram", str(data.Run.DiagramPath))
	addPair("Flows", func(c *xlsx.Cell) { c.SetInt(len(data.Flows)) })
	if e := data.Run.Error; e != nil {
		addPair("Error", str(string(e.Code)+" ["+string(e.Stage)+"]: "+e.Message))
	}

	if v := data.Verification; v != nil {
		addPair("Verification Attempt", func(c *xlsx.Cell) { c.SetInt(v.Attempt) })
		addPair("Passed", str(yesNo(v.Report.Passed)))
		addPair("Overall Accuracy", func(c *xlsx.Cell) { c.SetFloat(v.Report.OverallAccuracy) })
		addPair("Confidence", func(c *xlsx.Cell) { c.SetFloat(v.Report.ConfidenceScore) })
		addPair("Flows Verified", func(c *xlsx.Cell) { c.SetInt(v.Report.FlowsVerified) })
		addPair("Reasoning", str(v.Report.Reasoning))
	}
	return nil
}

func writeFlows(f *xlsx.File, flows []model.Flow) error {
	sheet, err := f.AddSheet(SheetFlows)
	if err != nil {
		return eris.Wrap(err, "xlsx: add flows sheet")
	}
	addHeader(sheet, flowHeader)

	for _, fl := range flows {
		row := sheet.AddRow()
		row.AddCell().SetString(fl.Source)
		row.AddCell().SetString(fl.Target)
		row.AddCell().SetFloat(fl.Amount)
		row.AddCell().SetString(string(fl.Category))
		var lineItem, section string
		if fl.Metadata != nil {
			lineItem, section = fl.Metadata.LineItem, fl.Metadata.StatementSection
		}
		row.AddCell().SetString(lineItem)
		row.AddCell().SetString(section)
	}
	return nil
}

func writeDiscrepancies(f *xlsx.File, discrepancies []model.Discrepancy) error {
	sheet, err := f.AddSheet(SheetDiscrepancies)
	if err != nil {
		return eris.Wrap(err, "xlsx: add discrepancies sheet")
	}
	addHeader(sheet, discrepancyHeader)

	for _, d := range discrepancies {
		row := sheet.AddRow()
		row.AddCell().SetString(d.Flow)
		row.AddCell().SetFloat(d.Expected)
		row.AddCell().SetFloat(d.Actual)
		pct := float64(d.PercentageError)
		if math.IsInf(pct, 1) {
			row.AddCell().SetString("Infinity")
		} else {
			row.AddCell().SetFloat(pct)
		}
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, header []string) {
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
