package audioring

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"
)

var ErrFrameTooLarge = errors.New("audio frame too large for buffer")

type rb_impl struct {
	mu      sync.Mutex
	size    int
	frames  int
	evicted int
	rb      *ringbuffer.RingBuffer
}

// Capacity implements AudioRingBuffer.
func (r *rb_impl) Capacity() int {
	return r.size
}

// Len implements AudioRingBuffer; bytes in use including framing.
func (r *rb_impl) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length()
}

// Frames implements AudioRingBuffer.
func (r *rb_impl) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Evicted implements AudioRingBuffer.
func (r *rb_impl) Evicted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

// Reset implements AudioRingBuffer.
func (r *rb_impl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
	r.frames = 0
}

// Enqueue implements AudioRingBuffer.
func (r *rb_impl) Enqueue(chunk AudioInput) error {
	data, err := chunk.MarshalBinary()
	if err != nil {
		return err
	}
	required := len(data) + 4

	r.mu.Lock()
	defer r.mu.Unlock()

	if required > r.rb.Capacity() {
		return ErrFrameTooLarge
	}
	for r.rb.Free() < required {
		if _, ok := r.next(); !ok {
			// framing lost, start over
			r.rb.Reset()
			r.frames = 0
			break
		}
		r.evicted++
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := r.rb.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := r.rb.Write(data); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Dequeue implements AudioRingBuffer.
func (r *rb_impl) Dequeue() (AudioInput, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next()
}

// Drain implements AudioRingBuffer.
func (r *rb_impl) Drain() []AudioInput {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AudioInput, 0, r.frames)
	for {
		chunk, ok := r.next()
		if !ok {
			break
		}
		out = append(out, chunk)
	}
	r.rb.Reset()
	r.frames = 0
	return out
}

// next pops one frame; callers hold mu.
func (r *rb_impl) next() (AudioInput, bool) {
	if r.rb.IsEmpty() {
		return AudioInput{}, false
	}
	var prefix [4]byte
	if n, err := r.rb.Read(prefix[:]); err != nil || n != 4 {
		return AudioInput{}, false
	}
	size := int(binary.LittleEndian.Uint32(prefix[:]))
	data := make([]byte, size)
	if n, err := r.rb.Read(data); err != nil || n != size {
		return AudioInput{}, false
	}
	r.frames--

	var chunk AudioInput
	if err := chunk.UnmarshalBinary(data); err != nil {
		return AudioInput{}, false
	}
	return chunk, true
}

func New(size int) AudioRingBuffer {
	return &rb_impl{
		size: size,
		rb:   ringbuffer.New(size).SetBlocking(false),
	}
}
