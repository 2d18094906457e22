package avatar

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("avatar: renderer unavailable")

// Renderer produces lip-synced frames for a spoken reply. Frames are opaque
// encoded images (JPEG in practice).
type Renderer interface {
	Render(ctx context.Context, text string, wav []byte) ([][]byte, error)
	// IdleFrames returns count frames of the idle loop starting at cursor and
	// the cursor to continue from.
	IdleFrames(ctx context.Context, cursor, count int) ([][]byte, int, error)
	Available() bool
	Close() error
}

type unavailable struct{}

func Unavailable() Renderer { return unavailable{} }

func (unavailable) Render(ctx context.Context, text string, wav []byte) ([][]byte, error) {
	return nil, ErrUnavailable
}
func (unavailable) IdleFrames(ctx context.Context, cursor, count int) ([][]byte, int, error) {
	return nil, cursor, ErrUnavailable
}
func (unavailable) Available() bool { return false }
func (unavailable) Close() error    { return nil }
