// Package gemini wraps the Google GenAI SDK for diagram image generation.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/sells-group/statement-flow/internal/resilience"
)

// Client generates images from text prompts.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// ImageRequest asks the model for a single rendered image.
type ImageRequest struct {
	Model       string
	Prompt      string
	Temperature *float32
}

// ImageResponse holds the first image part returned by the model along with
// any accompanying text.
type ImageResponse struct {
	Data     []byte
	MimeType string
	Text     string
}

// ErrNoImage is returned when the model answered without an image part.
var ErrNoImage = errors.New("gemini: response contained no image")

// Option configures the client.
type Option func(*config)

type config struct {
	baseURL   string
	perSecond float64
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *config) { c.perSecond = perSecond }
}

type sdkClient struct {
	models  *genai.Models
	limiter *rate.Limiter
}

// NewClient creates a Gemini API client bound to apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	c := &sdkClient{models: client.Models}
	if cfg.perSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.perSecond), 1)
	}
	return c, nil
}

func (c *sdkClient) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gemini: rate limit wait")
		}
	}

	gcc := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if req.Temperature != nil {
		gcc.Temperature = req.Temperature
	}

	result, err := c.models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), gcc)
	if err != nil {
		return nil, eris.Wrap(classify(err), "gemini: generate content")
	}

	return fromResponse(result)
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.FromStatus(err, apiErr.Code)
	}
	return err
}

func fromResponse(result *genai.GenerateContentResponse) (*ImageResponse, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}

	out := &ImageResponse{}
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && out.Data == nil {
			out.Data = part.InlineData.Data
			out.MimeType = part.InlineData.MIMEType
			continue
		}
		if part.Text != "" {
			out.Text += part.Text
		}
	}
	if out.Data == nil {
		return nil, eris.Wrapf(ErrNoImage, "finish reason %q", result.Candidates[0].FinishReason)
	}
	return out, nil
}
