package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Hello world"},
			{Type: "text", Text: "Second block"},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "Hello world", resp.Content[0].Text)
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "unknown", Content: "Follow-up"},
	}
	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, sdkMsgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[2].Role)
}

func TestToSDKMessages_Empty(t *testing.T) {
	assert.Empty(t, toSDKMessages(nil))
}

func TestToSDKMessages_AttachmentsPrecedeText(t *testing.T) {
	sdkMsgs := toSDKMessages([]Message{{
		Role:    "user",
		Content: "Compare the diagram with the flows.",
		Attachments: []Attachment{
			{Kind: AttachmentImage, MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}},
			{Kind: AttachmentDocument, Data: []byte("%PDF-1.4")},
		},
	}})
	require.Len(t, sdkMsgs, 1)

	raw, err := json.Marshal(sdkMsgs[0])
	require.NoError(t, err)

	var decoded struct {
		Content []struct {
			Type   string `json:"type"`
			Text   string `json:"text"`
			Source struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Content, 3)

	assert.Equal(t, "image", decoded.Content[0].Type)
	assert.Equal(t, "base64", decoded.Content[0].Source.Type)
	assert.Equal(t, "image/jpeg", decoded.Content[0].Source.MediaType)
	assert.Equal(t, "/9g=", decoded.Content[0].Source.Data)

	assert.Equal(t, "document", decoded.Content[1].Type)
	assert.Equal(t, "application/pdf", decoded.Content[1].Source.MediaType)

	assert.Equal(t, "text", decoded.Content[2].Type)
	assert.Equal(t, "Compare the diagram with the flows.", decoded.Content[2].Text)
}

func TestToSDKAttachment_DefaultImageType(t *testing.T) {
	raw, err := json.Marshal(toSDKAttachment(Attachment{Kind: AttachmentImage, Data: []byte("png")}))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"media_type":"image/png"`)
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "First block"},
		{Text: "Second block", CacheControl: &CacheControl{TTL: "5m"}},
		{Text: "Third block", CacheControl: &CacheControl{}},
	}
	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 3)
	assert.Equal(t, "First block", sdkBlocks[0].Text)
	assert.Equal(t, "Second block", sdkBlocks[1].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), sdkBlocks[1].CacheControl.TTL)
	assert.Equal(t, "Third block", sdkBlocks[2].Text)
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	client := NewClient("test-api-key", WithRateLimit(2), WithBaseURL("http://localhost:1"))
	require.NotNil(t, client)

	c, ok := client.(*sdkClient)
	require.True(t, ok)
	assert.NotNil(t, c.limiter)
}

func TestWithRateLimit_ZeroDisables(t *testing.T) {
	c := NewClient("test-api-key", WithRateLimit(0)).(*sdkClient)
	assert.Nil(t, c.limiter)
}
