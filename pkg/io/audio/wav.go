// Package audio holds the PCM/WAV framing shared by the speech handlers.
// Everything here is 16-bit little-endian PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	headerSize    = 44
	bitsPerSample = 16
)

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// PCMToWAV prepends a canonical 44 byte header.
func PCMToWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Silence returns a mono WAV of zeros lasting d.
func Silence(sampleRate int, d time.Duration) []byte {
	samples := int(int64(sampleRate) * d.Milliseconds() / 1000)
	return PCMToWAV(make([]byte, samples*2), sampleRate, 1)
}

func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// Decode walks the RIFF chunks and returns the format and the raw data chunk.
func Decode(wav []byte) (Format, []byte, error) {
	if !IsWAV(wav) {
		return Format{}, nil, ErrNotWAV
	}
	var (
		f      Format
		gotFmt bool
	)
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(wav) {
			// streamed WAVs often carry a placeholder size
			end = len(wav)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return Format{}, nil, fmt.Errorf("audio: short fmt chunk (%d bytes)", end-body)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14:]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return Format{}, nil, errors.New("audio: data chunk before fmt chunk")
			}
			return f, wav[body:end], nil
		}
		off = end + size%2
	}
	return Format{}, nil, errors.New("audio: no data chunk")
}

// Concat joins WAV clips sharing one format into a single WAV.
func Concat(clips [][]byte) ([]byte, error) {
	var (
		pcm   []byte
		first Format
	)
	for i, clip := range clips {
		f, data, err := Decode(clip)
		if err != nil {
			return nil, fmt.Errorf("clip %d: %w", i, err)
		}
		if i == 0 {
			first = f
		} else if f.SampleRate != first.SampleRate || f.Channels != first.Channels {
			return nil, fmt.Errorf("clip %d: format %dHz/%dch differs from %dHz/%dch",
				i, f.SampleRate, f.Channels, first.SampleRate, first.Channels)
		}
		pcm = append(pcm, data...)
	}
	if len(clips) == 0 {
		return nil, nil
	}
	return PCMToWAV(pcm, first.SampleRate, first.Channels), nil
}

// Duration of a 16-bit PCM payload.
func Duration(pcmLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := pcmLen / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
