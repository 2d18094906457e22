package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMToWAVRoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	wav := PCMToWAV(pcm, 16000, 1)

	require.Len(t, wav, 44+len(pcm))
	assert.True(t, IsWAV(wav))

	f, data, err := Decode(wav)
	require.NoError(t, err)
	assert.Equal(t, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, f)
	assert.Equal(t, pcm, data)
}

func TestSilence(t *testing.T) {
	wav := Silence(24000, time.Second)

	f, data, err := Decode(wav)
	require.NoError(t, err)
	assert.Equal(t, 24000, f.SampleRate)
	assert.Len(t, data, 48000)
	for _, b := range data {
		if b != 0 {
			t.Fatalf("silence contains non-zero byte %d", b)
		}
	}
	assert.Equal(t, time.Second, Duration(len(data), f.SampleRate, f.Channels))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not audio at all"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestConcat(t *testing.T) {
	a := PCMToWAV([]byte{1, 0}, 22050, 1)
	b := PCMToWAV([]byte{2, 0, 3, 0}, 22050, 1)

	joined, err := Concat([][]byte{a, b})
	require.NoError(t, err)
	_, data, err := Decode(joined)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, data)

	_, err = Concat([][]byte{a, PCMToWAV([]byte{0, 0}, 16000, 1)})
	assert.Error(t, err)

	empty, err := Concat(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestNormalizeWAVStereo(t *testing.T) {
	// two frames: L=100,R=300 and L=-200,R=-400
	pcm := []byte{100, 0, 44, 1, 0x38, 0xff, 0x70, 0xfe}
	clip := PCMToWAV(pcm, 48000, 2)

	got, rate, err := Normalize(context.Background(), clip, "audio/wav", 16000)
	require.NoError(t, err)
	assert.Equal(t, 48000, rate)
	assert.Equal(t, []byte{200, 0, 0xd4, 0xfe}, got)
}

func TestNormalizeRawPCM(t *testing.T) {
	got, rate, err := Normalize(context.Background(), []byte{1, 2, 3, 4}, "application/octet-stream", 16000)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestNormalizeRejects(t *testing.T) {
	_, _, err := Normalize(context.Background(), nil, "audio/wav", 16000)
	assert.Error(t, err)

	_, _, err = Normalize(context.Background(), []byte("{}"), "application/json", 16000)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
