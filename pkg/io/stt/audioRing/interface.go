package audioring

import (
	"encoding/binary"
	"errors"
	"time"
)

// AudioInput is one client-supplied audio chunk. Data is raw PCM or a WAV clip.
type AudioInput struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int32
	Channels   int16
}

const frameHeader = 8 + 4 + 2 + 4

var errShortFrame = errors.New("audioring: short frame")

// MarshalBinary layout: timestamp(8) sampleRate(4) channels(2) dataLen(4) data.
func (a *AudioInput) MarshalBinary() ([]byte, error) {
	buf := make([]byte, frameHeader+len(a.Data))
	binary.LittleEndian.PutUint64(buf[0:], uint64(a.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:], uint32(a.SampleRate))
	binary.LittleEndian.PutUint16(buf[12:], uint16(a.Channels))
	binary.LittleEndian.PutUint32(buf[14:], uint32(len(a.Data)))
	copy(buf[frameHeader:], a.Data)
	return buf, nil
}

func (a *AudioInput) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeader {
		return errShortFrame
	}
	a.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[0:])))
	a.SampleRate = int32(binary.LittleEndian.Uint32(data[8:]))
	a.Channels = int16(binary.LittleEndian.Uint16(data[12:]))
	n := int(binary.LittleEndian.Uint32(data[14:]))
	if len(data)-frameHeader < n {
		return errShortFrame
	}
	a.Data = make([]byte, n)
	copy(a.Data, data[frameHeader:frameHeader+n])
	return nil
}

// AudioRingBuffer accumulates chunks until the client marks the utterance final.
// When full the oldest chunks are evicted.
type AudioRingBuffer interface {
	Enqueue(chunk AudioInput) error
	Dequeue() (AudioInput, bool)
	// Drain removes and returns every buffered chunk, oldest first.
	Drain() []AudioInput
	Frames() int
	Len() int
	Capacity() int
	Evicted() int
	Reset()
}

// Join concatenates chunk payloads in order.
func Join(chunks []AudioInput) []byte {
	size := 0
	for _, c := range chunks {
		size += len(c.Data)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out
}
