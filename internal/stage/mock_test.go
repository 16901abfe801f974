package stage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/statement-flow/pkg/anthropic"
	"github.com/sells-group/statement-flow/pkg/gemini"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Gemini Mock ---

type mockGeminiClient struct {
	mock.Mock
}

func (m *mockGeminiClient) GenerateImage(ctx context.Context, req gemini.ImageRequest) (*gemini.ImageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.ImageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}
