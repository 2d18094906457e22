package assistant

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

var ErrUnavailable = errors.New("assistant: llm backend unavailable")

type AssistantMessage struct {
	Content   string
	CreatedAt time.Time
	MsgRole   Role
	// Image is an optional camera frame attached to a user message.
	Image     []byte
	ImageMIME string
}

type AssistantInput struct {
	Msgs []AssistantMessage
	Meta interface{}
}

type AssistantOutput struct {
	Id       string
	Response AssistantMessage
}

// DeltaFunc receives streamed text fragments in order. Returning an error aborts the stream.
type DeltaFunc func(delta string) error

type Assistant interface {
	ProcessPrompt(ctx context.Context, input AssistantInput) (*AssistantOutput, error)
	// StreamPrompt calls fn for every fragment and returns the assembled reply.
	StreamPrompt(ctx context.Context, input AssistantInput, fn DeltaFunc) (*AssistantOutput, error)
	Available() bool
	Close() error
}
