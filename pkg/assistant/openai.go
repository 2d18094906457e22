package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig targets any OpenAI-compatible chat endpoint (OpenAI, Ollama /v1, vLLM).
type OpenAIConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type openAIAssistant struct {
	client openai.Client
	cfg    OpenAIConfig
}

// ProcessPrompt implements Assistant.
func (o *openAIAssistant) ProcessPrompt(
	ctx context.Context,
	input AssistantInput,
) (*AssistantOutput, error) {
	chatCompletion, err := o.client.Chat.Completions.New(ctx, o.params(input))
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return nil, errors.New("openai completion returned no choices")
	}
	return NewReply(chatCompletion.ID, strings.TrimSpace(chatCompletion.Choices[0].Message.Content)), nil
}

// StreamPrompt implements Assistant.
func (o *openAIAssistant) StreamPrompt(
	ctx context.Context,
	input AssistantInput,
	fn DeltaFunc,
) (*AssistantOutput, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(input))
	defer stream.Close()

	var (
		id  string
		buf strings.Builder
	)
	for stream.Next() {
		chunk := stream.Current()
		if id == "" {
			id = chunk.ID
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if err := fn(delta); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai stream failed: %w", err)
	}
	return NewReply(id, strings.TrimSpace(buf.String())), nil
}

func (o *openAIAssistant) Available() bool { return true }

func (o *openAIAssistant) Close() error { return nil }

func (o *openAIAssistant) params(input AssistantInput) openai.ChatCompletionNewParams {
	convertedMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(input.Msgs))
	for _, msg := range input.Msgs {
		convertedMsgs = append(convertedMsgs, convertToOpenaiMsg(msg))
	}
	params := openai.ChatCompletionNewParams{
		Messages:    convertedMsgs,
		Model:       openai.ChatModel(o.cfg.Model),
		Temperature: openai.Float(o.cfg.Temperature),
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}
	return params
}

func convertToOpenaiMsg(msg AssistantMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.MsgRole {
	case ASSISTANT:
		return openai.AssistantMessage(msg.Content)
	case SYSTEM:
		return openai.SystemMessage(msg.Content)
	}
	if len(msg.Image) > 0 {
		return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(msg.Content),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: DataURL(msg.ImageMIME, msg.Image),
			}),
		})
	}
	return openai.UserMessage(msg.Content)
}

// DataURL inlines an image for APIs that take image URLs.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func NewOpenAI(cfg OpenAIConfig) Assistant {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	return &openAIAssistant{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}
