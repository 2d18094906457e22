package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GeminiProvider serves chat turns from the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	cfg    Config
}

// New creates a new GeminiProvider instance.
func New(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		cfg:    cfg,
	}, nil
}

// ProcessPrompt implements assistant.Assistant.
func (gp *GeminiProvider) ProcessPrompt(ctx context.Context, input assistant.AssistantInput) (*assistant.AssistantOutput, error) {
	cs, parts, err := gp.prepare(input)
	if err != nil {
		return nil, err
	}
	resp, err := cs.SendMessage(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat failed: %w", err)
	}
	return assistant.NewReply(uuid.NewString(), strings.TrimSpace(TextOf(resp))), nil
}

// StreamPrompt implements assistant.Assistant.
func (gp *GeminiProvider) StreamPrompt(ctx context.Context, input assistant.AssistantInput, fn assistant.DeltaFunc) (*assistant.AssistantOutput, error) {
	cs, parts, err := gp.prepare(input)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder
	iter := cs.SendMessageStream(ctx, parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive from Gemini stream: %w", err)
		}
		delta := TextOf(resp)
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if err := fn(delta); err != nil {
			return nil, err
		}
	}
	return assistant.NewReply(uuid.NewString(), strings.TrimSpace(buf.String())), nil
}

func (gp *GeminiProvider) Available() bool { return gp.client != nil }

func (gp *GeminiProvider) Close() error {
	if gp.client == nil {
		return nil
	}
	return gp.client.Close()
}

// prepare splits the conversation into chat history and the parts of the final user message.
func (gp *GeminiProvider) prepare(input assistant.AssistantInput) (*genai.ChatSession, []genai.Part, error) {
	if gp.client == nil {
		return nil, nil, fmt.Errorf("gemini client is not initialized")
	}
	if len(input.Msgs) == 0 {
		return nil, nil, fmt.Errorf("gemini: empty conversation")
	}

	model := gp.client.GenerativeModel(gp.cfg.Model)
	model.SetTemperature(float32(gp.cfg.Temperature))
	if gp.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(gp.cfg.MaxTokens))
	}

	var system []string
	history := make([]*genai.Content, 0, len(input.Msgs))
	for _, m := range input.Msgs[:len(input.Msgs)-1] {
		switch m.MsgRole {
		case assistant.SYSTEM:
			system = append(system, m.Content)
		case assistant.ASSISTANT:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n")))
	}

	cs := model.StartChat()
	cs.History = history
	return cs, ConvertParts(input.Msgs[len(input.Msgs)-1]), nil
}

func ConvertParts(m assistant.AssistantMessage) []genai.Part {
	parts := []genai.Part{genai.Text(m.Content)}
	if len(m.Image) > 0 {
		format := strings.TrimPrefix(m.ImageMIME, "image/")
		if format == "" {
			format = "jpeg"
		}
		parts = append(parts, genai.ImageData(format, m.Image))
	}
	return parts
}

// TextOf concatenates the text parts of the first candidate.
func TextOf(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
