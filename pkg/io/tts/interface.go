package tts

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

var ErrUnavailable = errors.New("tts: speech synthesis unavailable")

// Synthesizer renders text to a WAV clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	Available() bool
	Close() error
}

type unavailable struct{}

func Unavailable() Synthesizer { return unavailable{} }

func (unavailable) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return nil, ErrUnavailable
}
func (unavailable) Available() bool { return false }
func (unavailable) Close() error    { return nil }

const keptPunct = ",.~!?，。！？-: "

// CleanText drops emoji, markup and anything else a voice model would read out or choke on.
func CleanText(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		case strings.ContainsRune(keptPunct, r):
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
