package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/config"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/resilience"
	"github.com/sells-group/statement-flow/internal/schema"
	"github.com/sells-group/statement-flow/pkg/anthropic"
)

// VerificationRequest pairs a diagram with the flows it must show.
type VerificationRequest struct {
	Diagram   []byte
	MimeType  string
	Flows     []model.Flow
	Threshold float64
}

// Verifier checks a diagram against the extracted flows.
type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest, opts Options) (*model.VerificationReport, error)
}

const verificationSystemPrompt = `You audit Sankey diagrams of financial statements. Read the attached diagram and report, for every expected flow, the amount the diagram labels it with.

Return ONLY a JSON object:
{
  "value_comparisons": [
    {"flow": "<source> -> <target> exactly as given", "diagram_value": number or null, "found": boolean}
  ],
  "confidence_score": number between 0 and 1,
  "reasoning": string
}

Report the number printed on the diagram, not the expected amount. Use found=false and diagram_value=null when the flow is not drawn.`

const verificationPrompt = `Expected flows:
%s`

const verificationRetryPrompt = `Your previous answer was rejected with this error:
%s

Expected flows:
%s`

// comparison is the capability's raw reading of one flow.
type comparison struct {
	Flow         string   `json:"flow"`
	DiagramValue *float64 `json:"diagram_value"`
	Found        bool     `json:"found"`
}

type comparisonResponse struct {
	ValueComparisons []comparison `json:"value_comparisons"`
	ConfidenceScore  float64      `json:"confidence_score"`
	Reasoning        string       `json:"reasoning"`
}

// ClaudeVerifier implements Verifier with an Anthropic vision model. The
// model only reads values; discrepancies and the pass decision are computed
// locally.
type ClaudeVerifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	backoff   resilience.BackoffFunc
	now       func() time.Time
}

// NewVerifier creates a ClaudeVerifier.
func NewVerifier(client anthropic.Client, aiCfg config.AnthropicConfig, backoff resilience.BackoffFunc) *ClaudeVerifier {
	return &ClaudeVerifier{
		client:    client,
		model:     aiCfg.VerificationModel,
		maxTokens: aiCfg.MaxTokens,
		backoff:   backoff,
		now:       time.Now,
	}
}

// Verify reads the diagram and builds a VerificationReport against
// req.Threshold.
func (v *ClaudeVerifier) Verify(ctx context.Context, req VerificationRequest, opts Options) (*model.VerificationReport, error) {
	if len(req.Diagram) == 0 {
		return nil, eris.New("verification: diagram is empty")
	}
	if len(req.Flows) == 0 {
		return nil, eris.New("verification: no expected flows")
	}

	validator, err := schema.Comparison()
	if err != nil {
		return nil, eris.Wrap(err, "verification: load schema")
	}
	expected, err := expectedFlowsJSON(req.Flows)
	if err != nil {
		return nil, err
	}

	return retry(ctx, "Verification", opts, v.backoff, func(ctx context.Context, a resilience.Attempt) (*model.VerificationReport, error) {
		content := fmt.Sprintf(verificationPrompt, expected)
		if !a.First() {
			content = fmt.Sprintf(verificationRetryPrompt, priorMessage(a), expected)
		}

		resp, err := v.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.model,
			MaxTokens: v.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(verificationSystemPrompt),
			Messages: []anthropic.Message{{
				Role:    "user",
				Content: content,
				Attachments: []anthropic.Attachment{{
					Kind:      anthropic.AttachmentImage,
					MediaType: req.MimeType,
					Data:      req.Diagram,
				}},
			}},
		})
		if err != nil {
			return nil, eris.Wrap(err, "verification: create message")
		}
		resp.Usage.LogCost(v.model, "verification")

		var raw comparisonResponse
		if err := validator.Decode([]byte(schema.CleanJSON(resp.Text())), &raw); err != nil {
			return nil, eris.Wrap(err, "verification: parse response")
		}

		report := buildReport(req.Flows, raw.ValueComparisons, raw.ConfidenceScore, raw.Reasoning, req.Threshold, v.now())
		if err := report.Validate(req.Threshold); err != nil {
			return nil, eris.Wrap(err, "verification: invalid report")
		}

		zap.L().Info("verification: diagram checked",
			zap.Int("attempt", a.Number),
			zap.Bool("passed", report.Passed),
			zap.Float64("accuracy", report.OverallAccuracy),
			zap.Int("discrepancies", len(report.Discrepancies)),
		)
		return &report, nil
	})
}

// buildReport compares what was read off the diagram with the expected
// flows. A flow is a discrepancy when its percentage error exceeds
// threshold*100; a flow missing from the diagram reads as zero.
func buildReport(flows []model.Flow, comparisons []comparison, confidence float64, reasoning string, threshold float64, now time.Time) model.VerificationReport {
	read := make(map[string]comparison, len(comparisons))
	for _, c := range comparisons {
		read[normalizeKey(c.Flow)] = c
	}

	report := model.VerificationReport{
		Timestamp:        now.UTC(),
		FlowsTotal:       len(flows),
		Discrepancies:    []model.Discrepancy{},
		ConfidenceScore:  confidence,
		Reasoning:        strings.TrimSpace(reasoning),
		ValueComparisons: make([]model.ValueComparison, 0, len(flows)),
	}

	var accuracy float64
	for _, f := range flows {
		key := f.Key()
		actual := 0.0
		if c, ok := read[normalizeKey(key)]; ok && c.Found && c.DiagramValue != nil {
			actual = *c.DiagramValue
		}

		pctErr := model.PercentageError(f.Amount, actual)
		match := pctErr <= threshold*100
		errPct := model.Percent(pctErr)
		report.ValueComparisons = append(report.ValueComparisons, model.ValueComparison{
			Flow:         key,
			DiagramValue: actual,
			SourceValue:  f.Amount,
			Match:        match,
			Error:        &errPct,
		})

		if match {
			report.FlowsVerified++
		} else {
			report.Discrepancies = append(report.Discrepancies, model.NewDiscrepancy(key, f.Amount, actual))
		}
		if !math.IsInf(pctErr, 1) {
			accuracy += math.Max(0, 1-pctErr/100)
		}
	}
	if len(flows) > 0 {
		report.OverallAccuracy = accuracy / float64(len(flows))
	}
	if report.Reasoning == "" {
		report.Reasoning = fmt.Sprintf("%d of %d flows matched the diagram", report.FlowsVerified, report.FlowsTotal)
	}

	return report.Evaluate(threshold)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Join(strings.Fields(k), " "))
}

func expectedFlowsJSON(flows []model.Flow) (string, error) {
	type expectedFlow struct {
		Flow   string  `json:"flow"`
		Amount float64 `json:"amount"`
	}
	list := make([]expectedFlow, len(flows))
	for i, f := range flows {
		list[i] = expectedFlow{Flow: f.Key(), Amount: f.Amount}
	}
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return "", eris.Wrap(err, "verification: encode expected flows")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
