package hackrf

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/sweeper/sdr"
)

func TestEmulatorGains(t *testing.T) {
	e := NewEmulator()
	assert.NoError(t, e.SetLNAGain(32))
	assert.ErrorIs(t, e.SetLNAGain(33), sdr.ErrInvalidParam)
	assert.ErrorIs(t, e.SetLNAGain(48), sdr.ErrInvalidParam)
	assert.NoError(t, e.SetVGAGain(62))
	assert.ErrorIs(t, e.SetVGAGain(21), sdr.ErrInvalidParam)
	assert.ErrorIs(t, e.SetVGAGain(64), sdr.ErrInvalidParam)
	assert.ErrorIs(t, e.SetSampleRate(0), sdr.ErrInvalidParam)
}

func TestEmulatorInitSweep(t *testing.T) {
	e := NewEmulator()
	tests := []struct {
		name  string
		freqs []uint16
		block uint32
		step  uint32
		style sdr.SweepStyle
		ok    bool
	}{
		{name: "valid", freqs: []uint16{2400, 2420}, block: sdr.BytesPerBlock, step: 20000000, style: sdr.Interleaved, ok: true},
		{name: "odd table", freqs: []uint16{2400}, block: sdr.BytesPerBlock, step: 20000000},
		{name: "empty range", freqs: []uint16{2400, 2400}, block: sdr.BytesPerBlock, step: 20000000},
		{name: "too many ranges", freqs: make([]uint16, 22), block: sdr.BytesPerBlock, step: 20000000},
		{name: "tiny block", freqs: []uint16{1, 2}, block: 8, step: 20000000},
		{name: "zero step", freqs: []uint16{1, 2}, block: sdr.BytesPerBlock},
		{name: "bad style", freqs: []uint16{1, 2}, block: sdr.BytesPerBlock, step: 1, style: sdr.SweepStyle(5)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := e.InitSweep(tc.freqs, tc.block, tc.step, 0, tc.style)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, sdr.ErrInvalidParam)
			}
		})
	}
}

func TestEmulatorTunings(t *testing.T) {
	e := NewEmulator()
	require.NoError(t, e.InitSweep([]uint16{100, 140, 400, 420}, sdr.BytesPerBlock, 20000000, 0, sdr.Interleaved))
	assert.Equal(t, []uint64{100000000, 105000000, 120000000, 125000000, 400000000, 405000000}, e.tunings())

	require.NoError(t, e.InitSweep([]uint16{100, 140}, sdr.BytesPerBlock, 20000000, 0, sdr.Linear))
	assert.Equal(t, []uint64{100000000, 120000000}, e.tunings())
}

func TestEmulatorStreaming(t *testing.T) {
	e := NewEmulator(Tone{FreqHz: 2403500000, Amplitude: 0.5})
	e.Pace = 50 * time.Millisecond
	assert.ErrorIs(t, e.StartRxSweep(func(*sdr.Transfer) int { return 0 }), sdr.ErrInvalidParam)
	require.NoError(t, e.InitSweep([]uint16{2400, 2420}, sdr.BytesPerBlock, 20000000, 7500000, sdr.Interleaved))

	var mu sync.Mutex
	var headers []uint64
	transfers := 0
	require.NoError(t, e.StartRxSweep(func(tr *sdr.Transfer) int {
		mu.Lock()
		defer mu.Unlock()
		transfers++
		assert.Equal(t, sdr.BlocksPerTransfer*sdr.BytesPerBlock, tr.ValidLength)
		for b := 0; b < sdr.BlocksPerTransfer; b++ {
			f, ok := sdr.ParseBlockHeader(tr.Buffer[b*sdr.BytesPerBlock:])
			assert.True(t, ok)
			headers = append(headers, f)
		}
		if transfers == 2 {
			return 1
		}
		return 0
	}))
	assert.ErrorIs(t, e.StartRxSweep(func(*sdr.Transfer) int { return 0 }), sdr.ErrBusy)

	e.Wait()
	assert.False(t, e.IsStreaming())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, transfers)
	require.Len(t, headers, 2*sdr.BlocksPerTransfer)
	for i, f := range headers {
		if i%2 == 0 {
			assert.Equal(t, uint64(2400000000), f)
		} else {
			assert.Equal(t, uint64(2405000000), f)
		}
	}
}

func TestEmulatorStopRx(t *testing.T) {
	e := NewEmulator()
	e.Pace = time.Millisecond
	require.NoError(t, e.InitSweep([]uint16{100, 120}, sdr.BytesPerBlock, 20000000, 0, sdr.Linear))
	require.NoError(t, e.StartRxSweep(func(*sdr.Transfer) int { return 0 }))
	assert.True(t, e.IsStreaming())

	require.NoError(t, e.StopRx())
	assert.False(t, e.IsStreaming())
	require.NoError(t, e.StopRx())

	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.StartRxSweep(func(*sdr.Transfer) int { return 0 }), sdr.ErrNotFound)
}

func TestSynthesizeTone(t *testing.T) {
	e := &Emulator{}
	iq := make([]byte, 8)
	// A tone on the LO is a constant at full amplitude.
	e.synthesize(iq, 100000000, 20000000, []Tone{{FreqHz: 100000000, Amplitude: 1}}, nil)
	assert.Equal(t, []byte{127, 0, 127, 0, 127, 0, 127, 0}, iq)

	// Out of band tones are not heard.
	e.synthesize(iq, 100000000, 20000000, []Tone{{FreqHz: 200000000, Amplitude: 1}}, nil)
	assert.Equal(t, make([]byte, 8), iq)
}
