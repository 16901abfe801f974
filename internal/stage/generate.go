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
	"github.com/sells-group/statement-flow/pkg/gemini"
)

// DefaultMinDiagramBytes rejects payloads too small to be a rendered diagram.
const DefaultMinDiagramBytes = 1024

// GenerationRequest carries the extracted flows to draw.
type GenerationRequest struct {
	Flows    []model.Flow
	Metadata model.StatementMetadata
}

// Diagram is a rendered flow diagram.
type Diagram struct {
	Data     []byte
	MimeType string
}

// Generator renders flows into a diagram image.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest, opts Options) (*Diagram, error)
}

const generationPrompt = `Draw a Sankey diagram of the money flows of %s for %s to %s (Q%d %d), amounts in %s.

Rules:
- One node per distinct source or target name, labelled exactly as written below.
- One band per flow, width proportional to the amount.
- Label every band with its exact amount as written below. Do not round.
- Color bands by category: revenue green, expense red, asset blue, liability orange, equity purple.
- White background, legible labels, no decorative elements.

Flows:
%s`

const generationRetryNote = `

The previous diagram was rejected: %s
Make sure every flow above is drawn and every amount label is exact.`

// GeminiGenerator implements Generator with a Gemini image model.
type GeminiGenerator struct {
	client   gemini.Client
	model    string
	minBytes int
	backoff  resilience.BackoffFunc
}

// NewGenerator creates a GeminiGenerator.
func NewGenerator(client gemini.Client, gCfg config.GeminiConfig, minBytes int, backoff resilience.BackoffFunc) *GeminiGenerator {
	if minBytes <= 0 {
		minBytes = DefaultMinDiagramBytes
	}
	return &GeminiGenerator{
		client:   client,
		model:    gCfg.ImageModel,
		minBytes: minBytes,
		backoff:  backoff,
	}
}

// Generate renders the flows, rejecting missing or implausibly small images.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerationRequest, opts Options) (*Diagram, error) {
	if len(req.Flows) == 0 {
		return nil, eris.New("generation: no flows to draw")
	}

	return retry(ctx, "Generation", opts, g.backoff, func(ctx context.Context, a resilience.Attempt) (*Diagram, error) {
		resp, err := g.client.GenerateImage(ctx, gemini.ImageRequest{
			Model:  g.model,
			Prompt: generationPromptFor(req, a),
		})
		if err != nil {
			return nil, eris.Wrap(err, "generation: generate image")
		}
		if len(resp.Data) < g.minBytes {
			return nil, eris.Errorf("generation: diagram payload too small (%d bytes, need %d)", len(resp.Data), g.minBytes)
		}

		mime := resp.MimeType
		if mime == "" {
			mime = "image/png"
		}
		zap.L().Info("generation: diagram rendered",
			zap.Int("attempt", a.Number),
			zap.Int("bytes", len(resp.Data)),
			zap.String("mime_type", mime),
		)
		return &Diagram{Data: resp.Data, MimeType: mime}, nil
	})
}

func generationPromptFor(req GenerationRequest, a resilience.Attempt) string {
	var b strings.Builder
	for _, f := range req.Flows {
		fmt.Fprintf(&b, "- %s -> %s: %s (%s)\n", f.Source, f.Target, formatAmount(f.Amount), f.Category)
	}

	md := req.Metadata
	prompt := fmt.Sprintf(generationPrompt,
		md.Company, md.Period.Start, md.Period.End, md.Period.Quarter, md.Period.Year, md.Currency, b.String())
	if !a.First() {
		prompt += fmt.Sprintf(generationRetryNote, priorMessage(a))
	}
	return prompt
}

func formatAmount(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
