package hackrf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTones(t *testing.T) {
	tones, err := ParseTones("2403.5e6:0.8, 2450000000,")
	require.NoError(t, err)
	assert.Equal(t, []Tone{
		{FreqHz: 2403500000, Amplitude: 0.8},
		{FreqHz: 2450000000, Amplitude: defaultToneAmplitude},
	}, tones)

	tones, err = ParseTones("")
	require.NoError(t, err)
	assert.Empty(t, tones)

	for _, bad := range []string{"abc", "-5", "100:2", "100:x"} {
		_, err := ParseTones(bad)
		assert.Error(t, err, bad)
	}
}
