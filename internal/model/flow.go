package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// MinExtractionConfidence is the lowest extraction confidence the pipeline
// will carry forward into diagram generation.
const MinExtractionConfidence = 0.5

// DateLayout is the wire layout for statement period dates.
const DateLayout = "2006-01-02"

// Category classifies a flow within the financial statement.
type Category string

const (
	CategoryRevenue   Category = "revenue"
	CategoryExpense   Category = "expense"
	CategoryAsset     Category = "asset"
	CategoryLiability Category = "liability"
	CategoryEquity    Category = "equity"
)

// Categories lists every valid flow category in display order.
var Categories = []Category{
	CategoryRevenue,
	CategoryExpense,
	CategoryAsset,
	CategoryLiability,
	CategoryEquity,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// FlowMetadata carries optional provenance for a flow.
type FlowMetadata struct {
	LineItem         string `json:"line_item,omitempty"`
	StatementSection string `json:"statement_section,omitempty"`
}

// Flow is a single directed money movement between two named entities.
type Flow struct {
	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Amount   float64       `json:"amount"`
	Category Category      `json:"category"`
	Metadata *FlowMetadata `json:"metadata,omitempty"`
}

// Key returns the "source -> target" identifier used in verification.
func (f Flow) Key() string {
	return f.Source + " -> " + f.Target
}

// Validate checks the flow invariants.
func (f Flow) Validate() error {
	if strings.TrimSpace(f.Source) == "" {
		return eris.New("flow: source is empty")
	}
	if strings.TrimSpace(f.Target) == "" {
		return eris.Errorf("flow %q: target is empty", f.Source)
	}
	if !(f.Amount > 0) {
		return eris.Errorf("flow %s: amount must be positive, got %v", f.Key(), f.Amount)
	}
	if !f.Category.Valid() {
		return eris.Errorf("flow %s: unknown category %q", f.Key(), f.Category)
	}
	return nil
}

// Period is the reporting window of a statement.
type Period struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Quarter int    `json:"quarter"`
	Year    int    `json:"year"`
}

// Validate checks date ordering and quarter/year bounds.
func (p Period) Validate() error {
	start, err := time.Parse(DateLayout, p.Start)
	if err != nil {
		return eris.Wrapf(err, "period: invalid start date %q", p.Start)
	}
	end, err := time.Parse(DateLayout, p.End)
	if err != nil {
		return eris.Wrapf(err, "period: invalid end date %q", p.End)
	}
	if end.Before(start) {
		return eris.Errorf("period: end %s is before start %s", p.End, p.Start)
	}
	if p.Quarter < 1 || p.Quarter > 4 {
		return eris.Errorf("period: quarter must be 1-4, got %d", p.Quarter)
	}
	if p.Year < 2000 || p.Year > 2100 {
		return eris.Errorf("period: year must be 2000-2100, got %d", p.Year)
	}
	return nil
}

// StatementMetadata describes the statement the flows were extracted from.
type StatementMetadata struct {
	Company       string   `json:"company"`
	Period        Period   `json:"period"`
	Currency      string   `json:"currency"`
	StatementType []string `json:"statement_type"`
}

// Validate checks the metadata invariants.
func (m StatementMetadata) Validate() error {
	if strings.TrimSpace(m.Company) == "" {
		return eris.New("metadata: company is empty")
	}
	if err := m.Period.Validate(); err != nil {
		return eris.Wrap(err, "metadata")
	}
	if len(m.Currency) != 3 {
		return eris.Errorf("metadata: currency must be a 3-letter code, got %q", m.Currency)
	}
	if _, err := currency.ParseISO(m.Currency); err != nil {
		return eris.Wrapf(err, "metadata: unknown currency %q", m.Currency)
	}
	if len(m.StatementType) == 0 {
		return eris.New("metadata: statement_type is empty")
	}
	for _, st := range m.StatementType {
		if strings.TrimSpace(st) == "" {
			return eris.New("metadata: statement_type contains an empty entry")
		}
	}
	return nil
}

// AnalysisOutput is the extraction stage's sole output and the generation
// stage's sole input.
type AnalysisOutput struct {
	Flows      []Flow            `json:"flows"`
	Metadata   StatementMetadata `json:"metadata"`
	Confidence float64           `json:"confidence"`
}

// Validate checks structural invariants. It does not enforce the minimum
// confidence; callers decide how to treat low-confidence output.
func (a AnalysisOutput) Validate() error {
	if len(a.Flows) == 0 {
		return eris.New("analysis: no flows extracted")
	}
	for i, f := range a.Flows {
		if err := f.Validate(); err != nil {
			return eris.Wrapf(err, "analysis: flow %d", i)
		}
	}
	if err := a.Metadata.Validate(); err != nil {
		return eris.Wrap(err, "analysis")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return eris.Errorf("analysis: confidence must be within [0,1], got %v", a.Confidence)
	}
	return nil
}

// LowConfidence reports whether the output falls below MinExtractionConfidence.
func (a AnalysisOutput) LowConfidence() bool {
	return a.Confidence < MinExtractionConfidence
}
