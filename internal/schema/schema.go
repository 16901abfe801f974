// Package schema validates raw capability output against JSON schemas
// before it is decoded into model types.
package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/statement-flow/internal/model"
)

// Validator checks a JSON document against a compiled schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// Compile builds a Validator from a schema expressed as a generic map.
func Compile(name string, schemaMap map[string]any) (*Validator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: marshal %s", name)
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, eris.Wrapf(err, "schema: add %s", name)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: compile %s", name)
	}
	return &Validator{name: name, schema: s}, nil
}

// Validate checks that data is JSON matching the schema.
func (v *Validator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrapf(err, "schema: %s: invalid json", v.name)
	}
	if err := v.schema.Validate(doc); err != nil {
		return eris.Wrapf(err, "schema: %s: document does not match schema", v.name)
	}
	return nil
}

// Decode validates data and unmarshals it into out.
func (v *Validator) Decode(data []byte, out any) error {
	if err := v.Validate(data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "schema: %s: decode", v.name)
	}
	return nil
}

// AnalysisSchema is the contract for extraction output.
func AnalysisSchema() map[string]any {
	categories := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		categories[i] = string(c)
	}

	flow := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source":   map[string]any{"type": "string", "minLength": 1},
			"target":   map[string]any{"type": "string", "minLength": 1},
			"amount":   map[string]any{"type": "number", "exclusiveMinimum": 0},
			"category": map[string]any{"type": "string", "enum": categories},
			"metadata": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"line_item":         map[string]any{"type": "string"},
					"statement_section": map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"source", "target", "amount", "category"},
	}

	metadata := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"company": map[string]any{"type": "string", "minLength": 1},
			"period": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					"end":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					"quarter": map[string]any{"type": "integer", "minimum": 1, "maximum": 4},
					"year":    map[string]any{"type": "integer", "minimum": 2000, "maximum": 2100},
				},
				"required": []string{"start", "end", "quarter", "year"},
			},
			"currency": map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
			"statement_type": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
		},
		"required": []string{"company", "period", "currency", "statement_type"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"flows":      map[string]any{"type": "array", "minItems": 1, "items": flow},
			"metadata":   metadata,
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []string{"flows", "metadata", "confidence"},
	}
}

// ComparisonSchema is the contract for the verification capability's raw
// answer: what it read off the diagram for each expected flow.
func ComparisonSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value_comparisons": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"flow":          map[string]any{"type": "string", "minLength": 1},
						"diagram_value": map[string]any{"type": []string{"number", "null"}},
						"found":         map[string]any{"type": "boolean"},
					},
					"required": []string{"flow", "found"},
				},
			},
			"confidence_score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reasoning":        map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"value_comparisons", "confidence_score", "reasoning"},
	}
}

var (
	analysisOnce sync.Once
	analysisV    *Validator
	analysisErr  error

	comparisonOnce sync.Once
	comparisonV    *Validator
	comparisonErr  error
)

// Analysis returns the shared extraction-output validator.
func Analysis() (*Validator, error) {
	analysisOnce.Do(func() {
		analysisV, analysisErr = Compile("analysis", AnalysisSchema())
	})
	return analysisV, analysisErr
}

// Comparison returns the shared verification-output validator.
func Comparison() (*Validator, error) {
	comparisonOnce.Do(func() {
		comparisonV, comparisonErr = Compile("comparison", ComparisonSchema())
	})
	return comparisonV, comparisonErr
}

// CleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
