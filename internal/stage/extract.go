package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/config"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/resilience"
	"github.com/sells-group/statement-flow/internal/schema"
	"github.com/sells-group/statement-flow/pkg/anthropic"
)

// ExtractionRequest is the preprocessed statement. PDF carries the raw
// document and is sent instead of Text when IsScanned is set.
type ExtractionRequest struct {
	Text      string
	IsScanned bool
	PDF       []byte
}

// Extractor turns a statement into structured flows.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest, opts Options) (*model.AnalysisOutput, error)
}

const extractionSystemPrompt = `You are a financial analyst who converts financial statements into money flows for a Sankey diagram.

Return ONLY a JSON object with this shape:
{
  "flows": [
    {"source": string, "target": string, "amount": number > 0,
     "category": "revenue" | "expense" | "asset" | "liability" | "equity",
     "metadata": {"line_item": string, "statement_section": string}}
  ],
  "metadata": {
    "company": string,
    "period": {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD", "quarter": 1-4, "year": number},
    "currency": ISO 4217 code such as "USD",
    "statement_type": [string, ...]
  },
  "confidence": number between 0 and 1
}

Amounts are absolute values in the statement's currency. Every flow must balance against the statement totals. Set confidence to how sure you are that every amount was read correctly.`

const extractionPrompt = `Extract the money flows from this financial statement.

%s`

const extractionRetryPrompt = `Extract the money flows from this financial statement.

Your previous answer was rejected with this error:
%s

Correct the problem and return only the JSON object.

%s`

const scannedBody = "The statement is attached as a scanned PDF document."

// ClaudeExtractor implements Extractor with an Anthropic model.
type ClaudeExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	backoff   resilience.BackoffFunc
}

// NewExtractor creates a ClaudeExtractor.
func NewExtractor(client anthropic.Client, aiCfg config.AnthropicConfig, backoff resilience.BackoffFunc) *ClaudeExtractor {
	return &ClaudeExtractor{
		client:    client,
		model:     aiCfg.ExtractionModel,
		maxTokens: aiCfg.MaxTokens,
		backoff:   backoff,
	}
}

// Extract sends the statement to the model and validates the result. A
// confidence below model.MinExtractionConfidence fails without retry.
func (e *ClaudeExtractor) Extract(ctx context.Context, req ExtractionRequest, opts Options) (*model.AnalysisOutput, error) {
	if req.IsScanned && len(req.PDF) == 0 {
		return nil, eris.New("extraction: scanned statement has no document bytes")
	}
	if !req.IsScanned && strings.TrimSpace(req.Text) == "" {
		return nil, eris.New("extraction: statement text is empty")
	}

	validator, err := schema.Analysis()
	if err != nil {
		return nil, eris.Wrap(err, "extraction: load schema")
	}

	return retry(ctx, "Extraction", opts, e.backoff, func(ctx context.Context, a resilience.Attempt) (*model.AnalysisOutput, error) {
		log := zap.L().With(zap.String("stage", "extraction"), zap.Int("attempt", a.Number))

		resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
			Messages:  []anthropic.Message{e.message(req, a)},
		})
		if err != nil {
			return nil, eris.Wrap(err, "extraction: create message")
		}
		resp.Usage.LogCost(e.model, "extraction")

		var out model.AnalysisOutput
		if err := validator.Decode([]byte(schema.CleanJSON(resp.Text())), &out); err != nil {
			return nil, eris.Wrap(err, "extraction: parse response")
		}
		if err := out.Validate(); err != nil {
			return nil, eris.Wrap(err, "extraction: invalid analysis")
		}
		if out.LowConfidence() {
			return nil, resilience.Permanent(eris.Errorf("Low confidence extraction: %.2f is below %.2f",
				out.Confidence, model.MinExtractionConfidence))
		}

		log.Info("extraction: flows extracted",
			zap.Int("flows", len(out.Flows)),
			zap.Float64("confidence", out.Confidence),
		)
		return &out, nil
	})
}

func (e *ClaudeExtractor) message(req ExtractionRequest, a resilience.Attempt) anthropic.Message {
	body := "Statement text:\n" + req.Text
	var attachments []anthropic.Attachment
	if req.IsScanned {
		body = scannedBody
		attachments = []anthropic.Attachment{{Kind: anthropic.AttachmentDocument, Data: req.PDF}}
	}

	content := fmt.Sprintf(extractionPrompt, body)
	if !a.First() {
		content = fmt.Sprintf(extractionRetryPrompt, priorMessage(a), body)
	}
	return anthropic.Message{Role: "user", Content: content, Attachments: attachments}
}
