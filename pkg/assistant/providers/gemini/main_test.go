package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
)

func TestTextOf(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Dzień "), genai.Text("dobry.")}},
		}},
	}
	assert.Equal(t, "Dzień dobry.", TextOf(resp))
	assert.Equal(t, "", TextOf(nil))
	assert.Equal(t, "", TextOf(&genai.GenerateContentResponse{}))
}

func TestConvertPartsAttachesImage(t *testing.T) {
	parts := ConvertParts(assistant.AssistantMessage{Content: "co widzisz", Image: []byte{1}, ImageMIME: "image/png"})
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("co widzisz"), parts[0])
	blob, ok := parts[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Model: "gemini-1.5-flash"})
	assert.Error(t, err)
}
