package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmenter(t *testing.T) {
	tests := []struct {
		name   string
		pushes []string
		want   []string
		rest   string
	}{
		{
			name:   "keeps delimiter with clause",
			pushes: []string{"Hello. How are you"},
			want:   []string{"Hello."},
			rest:   "How are you",
		},
		{
			name:   "split across tokens",
			pushes: []string{"Cze", "ść, jak", " się masz?"},
			want:   []string{"Cześć,", "jak się masz?"},
		},
		{
			name:   "full width delimiters",
			pushes: []string{"你好。我很好！谢谢"},
			want:   []string{"你好。", "我很好！"},
			rest:   "谢谢",
		},
		{
			name:   "drops punctuation only units",
			pushes: []string{"Wow!", "...", " ok~"},
			want:   []string{"Wow!", "ok~"},
		},
		{
			name:   "digits are speakable",
			pushes: []string{"42. "},
			want:   []string{"42."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Segmenter
			var got []string
			for _, p := range tt.pushes {
				got = append(got, s.Push(p)...)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rest, s.Flush())
			assert.False(t, s.Pending())
		})
	}
}

func collect(ch <-chan string) []string {
	var out []string
	for u := range ch {
		out = append(out, u)
	}
	return out
}

func TestBufferEmitsClausesAndFinalFlush(t *testing.T) {
	b := NewBuffer(time.Hour, 8)
	for _, tok := range []string{"Hel", "lo. How", " are you"} {
		require.NoError(t, b.Push(tok))
	}
	b.Close()

	assert.Equal(t, []string{"Hello.", "How are you"}, collect(b.Units()))
	assert.Equal(t, 0, b.IdleFlushes())
	assert.ErrorIs(t, b.Push("late"), ErrClosed)
	b.Close()
}

func TestBufferIdleFlush(t *testing.T) {
	b := NewBuffer(30*time.Millisecond, 8)
	require.NoError(t, b.Push("Hello wor"))

	select {
	case u := <-b.Units():
		assert.Equal(t, "Hello wor", u)
	case <-time.After(time.Second):
		t.Fatal("idle flush never fired")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, b.IdleFlushes())

	b.Close()
	assert.Empty(t, collect(b.Units()))
}

func TestBufferTokenRearmsTimer(t *testing.T) {
	b := NewBuffer(200*time.Millisecond, 8)
	for _, tok := range []string{"a", " b", " c", " d"} {
		require.NoError(t, b.Push(tok))
		time.Sleep(50 * time.Millisecond)
	}
	assert.Len(t, b.Units(), 0)

	select {
	case u := <-b.Units():
		assert.Equal(t, "a b c d", u)
	case <-time.After(time.Second):
		t.Fatal("idle flush never fired")
	}
	assert.Equal(t, 1, b.IdleFlushes())
	b.Close()
}

func TestBufferNoTimerWithoutFragment(t *testing.T) {
	b := NewBuffer(10*time.Millisecond, 8)
	require.NoError(t, b.Push("Done."))
	assert.Equal(t, "Done.", <-b.Units())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, b.IdleFlushes())
	b.Close()
}
