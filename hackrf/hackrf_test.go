package hackrf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/sweep"
)

func TestSweepFindsTone(t *testing.T) {
	emu := NewEmulator(Tone{FreqHz: 2403500000, Amplitude: 0.5})
	emu.Seed = 1
	radio := &SDR{Identifier: "test", Device: emu, MaxSweeps: 3}
	opts := &sdr.Options{
		LowFreq:             2400000000,
		HighFreq:            2420000000,
		BinSize:             1000000,
		IntegrationInterval: time.Hour,
	}

	samples := make(chan sdr.Sample, 100)
	require.NoError(t, radio.Sweep(opts, samples))
	close(samples)

	var got []sdr.Sample
	for s := range samples {
		got = append(got, s)
	}
	require.Len(t, got, 20)

	peak := got[0]
	for _, s := range got {
		assert.Equal(t, "test", s.Identifier)
		assert.Equal(t, SourceName, s.Source)
		assert.Equal(t, uint64(60), s.SampleCount)
		assert.Equal(t, uint64(1000000), s.FreqHigh-s.FreqLow)
		if s.DBAvg > peak.DBAvg {
			peak = s
		}
	}
	assert.Equal(t, uint64(2403500000), peak.FreqCenter)
}

func TestSweepValidation(t *testing.T) {
	radio := &SDR{}
	samples := make(chan sdr.Sample)
	assert.Error(t, radio.Sweep(&sdr.Options{LowFreq: 1, HighFreq: 2, IntegrationInterval: time.Second}, samples))

	radio.Device = NewEmulator()
	assert.Error(t, radio.Sweep(&sdr.Options{LowFreq: 2, HighFreq: 1, IntegrationInterval: time.Second}, samples))
	assert.Error(t, radio.Sweep(&sdr.Options{LowFreq: 1, HighFreq: 2}, samples))
	assert.ErrorIs(t, radio.Sweep(&sdr.Options{LowFreq: 100000000, HighFreq: 120000000, BinSize: 1, IntegrationInterval: time.Second}, samples), sweep.ErrInvalidFFTSize)
}

func TestBinSamples(t *testing.T) {
	radio := &SDR{Identifier: "x"}
	sp := &sweep.Spectrum{
		Time:     time.Unix(10, 0),
		BinWidth: 1000000,
		Size:     8,
		Bands: [2]sweep.Band{
			{LowHz: 100000000, HighHz: 102000000, Power: []float32{-10, -20}},
			{LowHz: 104000000, HighHz: 106000000, Power: []float32{-30, -40}},
		},
	}
	got := radio.binSamples(sp, &sdr.Options{LowFreq: 101000000, HighFreq: 105000000})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(101500000), got[0].FreqCenter)
	assert.Equal(t, -20.0, got[0].DBAvg)
	assert.Equal(t, uint64(104500000), got[1].FreqCenter)
	assert.Equal(t, uint64(8), got[1].SampleCount)
	assert.Equal(t, time.Unix(10, 0), got[1].Start)
}
