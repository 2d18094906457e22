package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordPolicy(t *testing.T) {
	p := NewKeywordPolicy([]string{" Co widzisz ", "", "what do you see"})

	assert.True(t, p.WantsImage("Powiedz, co WIDZISZ teraz?"))
	assert.True(t, p.WantsImage("so what do you see"))
	assert.False(t, p.WantsImage("jaka jest pogoda"))
	assert.False(t, NewKeywordPolicy(nil).WantsImage("co widzisz"))
}

func TestPolicyFunc(t *testing.T) {
	var p VisualPolicy = PolicyFunc(func(text string) bool { return text == "look" })
	assert.True(t, p.WantsImage("look"))
	assert.False(t, p.WantsImage("listen"))
}

func TestUnavailable(t *testing.T) {
	a := Unavailable()
	assert.False(t, a.Available())

	_, err := a.ProcessPrompt(context.Background(), AssistantInput{})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = a.StreamPrompt(context.Background(), AssistantInput{}, func(string) error { return nil })
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, a.Close())
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQI=", DataURL("", []byte{1, 2}))
	assert.Equal(t, "data:image/png;base64,AQI=", DataURL("image/png", []byte{1, 2}))
}
