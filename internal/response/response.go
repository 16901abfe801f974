// Package response maps pipeline results onto the externally visible
// response shape.
package response

import (
	"fmt"

	"github.com/sells-group/statement-flow/internal/model"
)

// Response is the formatted outcome of a run, or of a failed lookup.
type Response struct {
	Success      bool          `json:"success" yaml:"success"`
	RunID        string        `json:"runId,omitempty" yaml:"runId,omitempty"`
	Status       string        `json:"status,omitempty" yaml:"status,omitempty"`
	Diagram      []byte        `json:"diagram,omitempty" yaml:"-"`
	DiagramPath  string        `json:"diagramPath,omitempty" yaml:"diagramPath,omitempty"`
	DiagramURL   string        `json:"diagramUrl,omitempty" yaml:"diagramUrl,omitempty"`
	Flows        []model.Flow  `json:"flows,omitempty" yaml:"flows,omitempty"`
	Verification Verification  `json:"verification" yaml:"verification"`
	Metadata     Metadata      `json:"metadata" yaml:"metadata"`
	Error        *ErrorDetails `json:"error,omitempty" yaml:"error,omitempty"`
}

// Verification summarises the last verification report.
type Verification struct {
	Verified        bool          `json:"verified" yaml:"verified"`
	Accuracy        float64       `json:"accuracy" yaml:"accuracy"`
	ConfidenceScore float64       `json:"confidenceScore" yaml:"confidenceScore"`
	Reasoning       string        `json:"reasoning" yaml:"reasoning"`
	FlowsVerified   int           `json:"flowsVerified" yaml:"flowsVerified"`
	FlowsTotal      int           `json:"flowsTotal" yaml:"flowsTotal"`
	Discrepancies   []Discrepancy `json:"discrepancies" yaml:"discrepancies"`
}

// Discrepancy is a flow whose diagram value is out of tolerance.
type Discrepancy struct {
	Flow            string        `json:"flow" yaml:"flow"`
	Expected        float64       `json:"expected" yaml:"expected"`
	Actual          float64       `json:"actual" yaml:"actual"`
	PercentageError model.Percent `json:"percentageError" yaml:"percentageError"`
}

// Metadata carries statement and processing details.
type Metadata struct {
	Statement  *Statement `json:"statement,omitempty" yaml:"statement,omitempty"`
	Processing Processing `json:"processing" yaml:"processing"`
}

// Statement describes the source document.
type Statement struct {
	Company       string   `json:"company" yaml:"company"`
	PeriodStart   string   `json:"periodStart" yaml:"periodStart"`
	PeriodEnd     string   `json:"periodEnd" yaml:"periodEnd"`
	Quarter       int      `json:"quarter" yaml:"quarter"`
	Year          int      `json:"year" yaml:"year"`
	Currency      string   `json:"currency" yaml:"currency"`
	StatementType []string `json:"statementType" yaml:"statementType"`
}

// Processing reports time spent and work done.
type Processing struct {
	Time           int64  `json:"time" yaml:"time"`
	TimeFormatted  string `json:"timeFormatted" yaml:"timeFormatted"`
	Retries        int    `json:"retries" yaml:"retries"`
	FlowsExtracted int    `json:"flowsExtracted" yaml:"flowsExtracted"`
}

// ErrorDetails is the error block of a failed response.
type ErrorDetails struct {
	Code        model.ErrorCode `json:"code" yaml:"code"`
	Message     string          `json:"message" yaml:"message"`
	Stage       model.Stage     `json:"stage" yaml:"stage"`
	Recoverable bool            `json:"recoverable" yaml:"recoverable"`
}

// ErrorInfo is the input to FormatError.
type ErrorInfo struct {
	Code    model.ErrorCode
	Message string
	Stage   model.Stage
}

// PartialResults is data salvaged from stages that completed before the
// failure. FlowsCount wins over len(Flows) when set.
type PartialResults struct {
	Flows      []model.Flow
	FlowsCount *int
}

// FormatSuccess formats a run whose cycle ran to the end. metadata and
// report override the ones carried on result when non-nil.
func FormatSuccess(result *model.PipelineResult, metadata *model.StatementMetadata, report *model.VerificationReport) Response {
	if metadata == nil {
		metadata = result.StatementMetadata
	}
	if report == nil {
		report = result.VerificationReport
	}

	v := Verification{
		Verified:      result.Success,
		Accuracy:      result.Accuracy,
		Reasoning:     result.Reasoning,
		FlowsTotal:    result.Metadata.FlowsExtracted,
		Discrepancies: []Discrepancy{},
	}
	if report != nil {
		v.ConfidenceScore = report.ConfidenceScore
		v.FlowsVerified = min(report.FlowsVerified, v.FlowsTotal)
		v.Discrepancies = discrepancies(report.Discrepancies)
		if v.Reasoning == "" {
			v.Reasoning = report.Reasoning
		}
	}

	return Response{
		Success:      result.Success,
		RunID:        result.RunID,
		Diagram:      result.Diagram,
		DiagramPath:  result.DiagramPath,
		Flows:        result.Flows,
		Verification: v,
		Metadata: Metadata{
			Statement:  statement(metadata),
			Processing: processing(result.Metadata),
		},
	}
}

// FormatError formats a failure. Counters are zero unless partial supplies
// extracted flows.
func FormatError(info ErrorInfo, partial *PartialResults) Response {
	count := 0
	var flows []model.Flow
	if partial != nil {
		flows = partial.Flows
		count = len(partial.Flows)
		if partial.FlowsCount != nil {
			count = *partial.FlowsCount
		}
	}

	return Response{
		Success: false,
		Flows:   flows,
		Verification: Verification{
			FlowsTotal:    count,
			Discrepancies: []Discrepancy{},
		},
		Metadata: Metadata{
			Processing: Processing{
				TimeFormatted:  FormatDuration(0),
				FlowsExtracted: count,
			},
		},
		Error: &ErrorDetails{
			Code:        info.Code,
			Message:     info.Message,
			Stage:       info.Stage,
			Recoverable: info.Code != model.ErrCodeUnknown,
		},
	}
}

// FormatResult dispatches on result.Error.
func FormatResult(result *model.PipelineResult) Response {
	if result.Error == nil {
		return FormatSuccess(result, nil, nil)
	}

	count := result.Metadata.FlowsExtracted
	resp := FormatError(ErrorInfo{
		Code:    result.Error.Code,
		Message: result.Error.Message,
		Stage:   result.Error.Stage,
	}, &PartialResults{Flows: result.Flows, FlowsCount: &count})

	resp.RunID = result.RunID
	resp.Diagram = result.Diagram
	resp.DiagramPath = result.DiagramPath
	resp.Metadata.Statement = statement(result.StatementMetadata)
	resp.Metadata.Processing = processing(result.Metadata)
	if rep := result.VerificationReport; rep != nil {
		resp.Verification.ConfidenceScore = rep.ConfidenceScore
		resp.Verification.Reasoning = rep.Reasoning
		resp.Verification.FlowsVerified = min(rep.FlowsVerified, count)
		resp.Verification.Discrepancies = discrepancies(rep.Discrepancies)
	}
	return resp
}

// FormatDuration renders ms as "Nms" below a second, "N.Ns" below a
// minute, else "Mm Ss".
func FormatDuration(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	default:
		return fmt.Sprintf("%dm %ds", ms/60000, (ms%60000)/1000)
	}
}

func processing(m model.ResultMetadata) Processing {
	return Processing{
		Time:           m.ProcessingTimeMs,
		TimeFormatted:  FormatDuration(m.ProcessingTimeMs),
		Retries:        m.Retries,
		FlowsExtracted: m.FlowsExtracted,
	}
}

func statement(m *model.StatementMetadata) *Statement {
	if m == nil {
		return nil
	}
	return &Statement{
		Company:       m.Company,
		PeriodStart:   m.Period.Start,
		PeriodEnd:     m.Period.End,
		Quarter:       m.Period.Quarter,
		Year:          m.Period.Year,
		Currency:      m.Currency,
		StatementType: m.StatementType,
	}
}

func discrepancies(in []model.Discrepancy) []Discrepancy {
	out := make([]Discrepancy, 0, len(in))
	for _, d := range in {
		out = append(out, Discrepancy{
			Flow:            d.Flow,
			Expected:        d.Expected,
			Actual:          d.Actual,
			PercentageError: d.PercentageError,
		})
	}
	return out
}
