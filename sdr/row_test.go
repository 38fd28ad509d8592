package sdr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	line := "2024-03-01, 12:30:45.250000, 2400000000, 2405000000, 1666666.67, 12, -70.25, -80.50, -90.00"

	samples, err := ParseRow(line, "station-1", "hackrf")
	require.NoError(t, err)
	require.Len(t, samples, 3)

	want := time.Date(2024, 3, 1, 12, 30, 45, 250000000, time.Local)
	for _, s := range samples {
		assert.True(t, s.Start.Equal(want), "start %s", s.Start)
		assert.Equal(t, "station-1", s.Identifier)
		assert.Equal(t, "hackrf", s.Source)
		assert.Equal(t, uint64(12), s.SampleCount)
	}

	assert.Equal(t, uint64(2400000000), samples[0].FreqLow)
	assert.Equal(t, uint64(2401666666), samples[0].FreqHigh)
	assert.Equal(t, -70.25, samples[0].DBAvg)
	assert.Equal(t, uint64(2403333332), samples[2].FreqLow)
	assert.Equal(t, uint64(2404999998), samples[2].FreqHigh)
	assert.Equal(t, -90.0, samples[2].DBHigh)
}

func TestParseRowClampsLastBin(t *testing.T) {
	samples, err := ParseRow("2024-03-01, 00:00:00.000000, 100, 150, 30, 4, -1.00, -2.00", "", "")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, uint64(130), samples[1].FreqLow)
	assert.Equal(t, uint64(150), samples[1].FreqHigh)
}

func TestParseRowErrors(t *testing.T) {
	for name, line := range map[string]string{
		"too short":  "2024-03-01, 00:00:00.000000, 1, 2, 3, 4",
		"bad time":   "yesterday, noon, 1, 2, 3, 4, -1.00",
		"bad freq":   "2024-03-01, 00:00:00.000000, x, 2, 3, 4, -1.00",
		"bad power":  "2024-03-01, 00:00:00.000000, 1, 2, 3, 4, loud",
		"bad counts": "2024-03-01, 00:00:00.000000, 1, 2, 3, -4, -1.00",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRow(line, "", "")
			assert.Error(t, err)
		})
	}
}
