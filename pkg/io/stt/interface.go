package stt

import (
	"context"
	"errors"
	"time"

	audioring "github.com/xpanvictor/avatarchat/pkg/io/stt/audioRing"
)

var ErrUnavailable = errors.New("stt: speech recognition unavailable")

type Transcript struct {
	Text        string
	Language    string
	GeneratedAt time.Time
}

// Transcriber turns one utterance of 16-bit mono PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, in audioring.AudioInput) (Transcript, error)
	Available() bool
	Close() error
}

type unavailable struct{}

func Unavailable() Transcriber { return unavailable{} }

func (unavailable) Transcribe(ctx context.Context, in audioring.AudioInput) (Transcript, error) {
	return Transcript{}, ErrUnavailable
}
func (unavailable) Available() bool { return false }
func (unavailable) Close() error    { return nil }
