package assistant

import (
	"context"
	"time"
)

func NewAssistantInput(
	msgs []AssistantMessage,
	meta interface{},
) AssistantInput {
	return AssistantInput{
		Msgs: msgs,
		Meta: meta,
	}
}

// NewReply wraps a finished completion.
func NewReply(id, content string) *AssistantOutput {
	return &AssistantOutput{
		Id: id,
		Response: AssistantMessage{
			Content:   content,
			CreatedAt: time.Now(),
			MsgRole:   ASSISTANT,
		},
	}
}

type unavailable struct{}

// Unavailable is the stand-in used when no LLM backend could be configured.
func Unavailable() Assistant { return unavailable{} }

func (unavailable) ProcessPrompt(ctx context.Context, input AssistantInput) (*AssistantOutput, error) {
	return nil, ErrUnavailable
}

func (unavailable) StreamPrompt(ctx context.Context, input AssistantInput, fn DeltaFunc) (*AssistantOutput, error) {
	return nil, ErrUnavailable
}

func (unavailable) Available() bool { return false }
func (unavailable) Close() error    { return nil }
