package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
	"github.com/xpanvictor/avatarchat/pkg/assistant"
)

type Server struct {
	URL   string
	Group string
}

type Config struct {
	Servers     []Server
	Model       string
	MaxTokens   int
	Temperature float64
}

// OllamaProvider spreads chat calls over a farm of ollama servers.
type OllamaProvider struct {
	ollamafarm *ollamafarm.Farm
	cfg        Config
	logger     *Logger.Logger
}

func New(cfg Config, logger *Logger.Logger) (*OllamaProvider, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("ollama: no servers configured")
	}
	farm := ollamafarm.New()

	registered := 0
	for _, srv := range cfg.Servers {
		err := farm.RegisterURL(srv.URL, &ollamafarm.Properties{Group: srv.Group})
		if err != nil {
			logger.Warnf("ollama: skipping server %s: %v", srv.URL, err)
			continue
		}
		registered++
	}
	if registered == 0 {
		return nil, fmt.Errorf("ollama: none of %d servers could be registered", len(cfg.Servers))
	}

	return &OllamaProvider{
		ollamafarm: farm,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (o *OllamaProvider) Chat(
	ctx context.Context,
	req api.ChatRequest,
	fn api.ChatResponseFunc,
) error {
	// pick first available client
	ollama := o.ollamafarm.First(&ollamafarm.Where{Offline: false})
	if ollama == nil {
		return fmt.Errorf("no online ollama server for model %v", req.Model)
	}
	return ollama.Client().Chat(ctx, &req, fn)
}

// ProcessPrompt implements assistant.Assistant.
func (o *OllamaProvider) ProcessPrompt(ctx context.Context, input assistant.AssistantInput) (*assistant.AssistantOutput, error) {
	return o.run(ctx, input, false, nil)
}

// StreamPrompt implements assistant.Assistant.
func (o *OllamaProvider) StreamPrompt(ctx context.Context, input assistant.AssistantInput, fn assistant.DeltaFunc) (*assistant.AssistantOutput, error) {
	return o.run(ctx, input, true, fn)
}

func (o *OllamaProvider) run(ctx context.Context, input assistant.AssistantInput, stream bool, fn assistant.DeltaFunc) (*assistant.AssistantOutput, error) {
	req := api.ChatRequest{
		Model:    o.cfg.Model,
		Messages: ConvertMsgs(input.Msgs),
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": o.cfg.Temperature,
		},
	}
	if o.cfg.MaxTokens > 0 {
		req.Options["num_predict"] = o.cfg.MaxTokens
	}

	var buf strings.Builder
	err := o.Chat(ctx, req, func(resp api.ChatResponse) error {
		delta := resp.Message.Content
		if delta == "" {
			return nil
		}
		buf.WriteString(delta)
		if fn != nil {
			return fn(delta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	return assistant.NewReply(uuid.NewString(), strings.TrimSpace(buf.String())), nil
}

func (o *OllamaProvider) Available() bool { return true }

func (o *OllamaProvider) Close() error { return nil }

func ConvertMsgs(msgs []assistant.AssistantMessage) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := api.Message{Role: string(m.MsgRole), Content: m.Content}
		if len(m.Image) > 0 {
			msg.Images = []api.ImageData{m.Image}
		}
		out = append(out, msg)
	}
	return out
}
