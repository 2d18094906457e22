package stream

import (
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("stream: buffer closed")

const DefaultIdleFlush = 500 * time.Millisecond

// Buffer feeds LLM tokens through a Segmenter. Complete clauses are emitted
// as soon as they appear; a trailing fragment is emitted once no token has
// arrived for the idle period. Units are delivered on Units() in order.
type Buffer struct {
	mu      sync.Mutex
	seg     Segmenter
	idle    time.Duration
	timer   *time.Timer
	gen     uint64
	flushes int
	closed  bool
	out     chan string
}

// NewBuffer returns a buffer whose output channel holds up to size units.
// The consumer must keep draining Units() until it is closed.
func NewBuffer(idle time.Duration, size int) *Buffer {
	if idle <= 0 {
		idle = DefaultIdleFlush
	}
	if size < 1 {
		size = 1
	}
	return &Buffer{idle: idle, out: make(chan string, size)}
}

func (b *Buffer) Units() <-chan string { return b.out }

// Push appends one token. Every call cancels the pending idle flush.
func (b *Buffer) Push(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.cancel()
	for _, u := range b.seg.Push(token) {
		b.out <- u
	}
	if b.seg.Pending() {
		b.arm()
	}
	return nil
}

// Close emits the remaining fragment and closes Units(). Safe to call twice.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.cancel()
	b.emit(b.seg.Flush())
	b.closed = true
	close(b.out)
}

// IdleFlushes counts flushes triggered by the idle timer.
func (b *Buffer) IdleFlushes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes
}

func (b *Buffer) arm() {
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.idle, func() { b.fire(gen) })
}

func (b *Buffer) cancel() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

// fire runs on the timer goroutine; a stale generation means a token or
// Close got there first.
func (b *Buffer) fire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || gen != b.gen {
		return
	}
	b.timer = nil
	b.flushes++
	b.emit(b.seg.Flush())
}

func (b *Buffer) emit(unit string) {
	if unit != "" {
		b.out <- unit
	}
}
