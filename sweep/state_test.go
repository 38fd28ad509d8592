package sweep

import (
	"bytes"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/sdr"
)

const (
	testStart  = 2400000000
	testSecond = 2405000000
)

type fakeDevice struct {
	freqs         []uint16
	bytesPerBlock uint32
	step          uint32
	offset        uint32
	style         sdr.SweepStyle
	fn            sdr.TransferFunc

	initErr  error
	startErr error
}

func (d *fakeDevice) InitSweep(freqs []uint16, bytesPerBlock, step, offset uint32, style sdr.SweepStyle) error {
	if d.initErr != nil {
		return d.initErr
	}
	d.freqs, d.bytesPerBlock, d.step, d.offset, d.style = freqs, bytesPerBlock, step, offset, style
	return nil
}

func (d *fakeDevice) StartRxSweep(fn sdr.TransferFunc) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.fn = fn
	return nil
}

func (d *fakeDevice) IsStreaming() bool { return d.fn != nil }

// fillTone writes a complex tone at cycles per sample into the I/Q area of
// a block.
func fillTone(iq []byte, cycles float64) {
	for n := 0; n < len(iq)/2; n++ {
		phase := 2 * math.Pi * cycles * float64(n)
		iq[2*n] = byte(int8(100 * math.Cos(phase)))
		iq[2*n+1] = byte(int8(100 * math.Sin(phase)))
	}
}

func transfer(freqs ...uint64) *sdr.Transfer {
	buf := make([]byte, len(freqs)*sdr.BytesPerBlock)
	for i, f := range freqs {
		block := buf[i*sdr.BytesPerBlock : (i+1)*sdr.BytesPerBlock]
		sdr.PutBlockHeader(block, f)
		fillTone(block[sdr.BlockHeaderSize:], -0.3)
	}
	return &sdr.Transfer{Buffer: buf, ValidLength: len(buf)}
}

// newTestState returns a state sweeping 2400-2420 MHz in one 20 MHz step,
// so every sweep is the two blocks testStart and testSecond.
func newTestState(t *testing.T, mode OutputMode, w io.Writer) (*State, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{}
	s := &State{now: func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 250000000, time.Local) }}
	require.NoError(t, s.Init(dev, 0, 0))
	sink := SinkWriter
	if w == nil {
		sink = SinkDiscard
	}
	require.NoError(t, s.SetOutput(mode, sink, w))
	require.NoError(t, s.SetRange(Range{MinMHz: 2400, MaxMHz: 2420}))
	require.NoError(t, s.SetupFFT(fft.Estimate, 0))
	return s, dev
}

func TestInit(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	assert.Equal(t, uint32(sdr.DefaultSampleRate), s.SampleRate())
	assert.Equal(t, uint32(20000000), s.TuneStep())
	assert.Equal(t, []Range{{MinMHz: 0, MaxMHz: 7260, Steps: 363}}, s.Ranges())
	assert.Equal(t, Initialized, s.Snapshot().Lifecycle)
	assert.Equal(t, Stopped, s.Snapshot().Run)

	assert.ErrorIs(t, s.Init(&fakeDevice{}, 0, 0), sdr.ErrInvalidParam)
}

func TestInitTuneStep(t *testing.T) {
	s := &State{}
	assert.ErrorIs(t, s.Init(&fakeDevice{}, 10000000, 2500000), sdr.ErrInvalidParam)
	require.NoError(t, s.Init(&fakeDevice{}, 2500000, 0))
	assert.Equal(t, uint32(2000000), s.TuneStep())

	s = &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 800000, 0))
	assert.Equal(t, uint32(1000000), s.TuneStep())
}

func TestNotInitialized(t *testing.T) {
	s := &State{}
	assert.ErrorIs(t, s.SetOutput(OutputText, SinkDiscard, nil), ErrNotReady)
	assert.ErrorIs(t, s.SetRange(), ErrNotReady)
	assert.ErrorIs(t, s.SetupFFT(fft.Estimate, 0), ErrNotReady)
	assert.ErrorIs(t, s.Start(0), ErrNotReady)
	assert.ErrorIs(t, s.Stop(), ErrNotReady)
	assert.ErrorIs(t, s.Close(), ErrNotReady)
}

func TestSetOutput(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))

	assert.ErrorIs(t, s.SetOutput(OutputText, SinkWriter, nil), sdr.ErrInvalidParam)
	assert.ErrorIs(t, s.SetOutput(OutputMode(7), SinkDiscard, nil), sdr.ErrInvalidParam)
	assert.ErrorIs(t, s.SetOutput(OutputText, SinkType(9), &bytes.Buffer{}), sdr.ErrInvalidParam)
	assert.False(t, s.Snapshot().OutputSet)

	require.NoError(t, s.SetOutput(OutputBinary, SinkWriter, &bytes.Buffer{}))
	assert.True(t, s.Snapshot().OutputSet)
}

func TestSetRangeNeedsOutput(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	assert.ErrorIs(t, s.SetRange(Range{MinMHz: 100, MaxMHz: 200}), ErrNotReady)
}

func TestSetRangeRejectedKeepsTable(t *testing.T) {
	s, _ := newTestState(t, OutputText, nil)
	before := s.Ranges()

	assert.ErrorIs(t, s.SetRange(Range{MinMHz: 300, MaxMHz: 200}), ErrInvalidRange)
	assert.ErrorIs(t, s.SetRange(make([]Range, 11)...), ErrInvalidRangeCount)
	assert.Equal(t, before, s.Ranges())

	require.NoError(t, s.SetRange())
	assert.Equal(t, 363, s.StepCount())
}

func TestInverseSingleRange(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	require.NoError(t, s.SetOutput(OutputText, SinkDiscard, nil))
	require.NoError(t, s.SetRange(Range{MinMHz: 100, MaxMHz: 120}, Range{MinMHz: 400, MaxMHz: 420}))
	assert.ErrorIs(t, s.SetOutput(OutputInverse, SinkDiscard, nil), ErrIncompatibleMode)

	require.NoError(t, s.SetRange(Range{MinMHz: 100, MaxMHz: 120}))
	require.NoError(t, s.SetOutput(OutputInverse, SinkDiscard, nil))
	assert.ErrorIs(t, s.SetRange(Range{MinMHz: 100, MaxMHz: 120}, Range{MinMHz: 400, MaxMHz: 420}), ErrIncompatibleMode)
}

func TestSetupFFT(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))

	require.NoError(t, s.SetupFFT(fft.Estimate, 0))
	assert.Equal(t, 20, s.FFTSize())
	assert.Equal(t, 1000000.0, s.BinWidth())

	require.NoError(t, s.SetupFFT(fft.Estimate, 2500000))
	assert.Equal(t, 12, s.FFTSize())

	assert.ErrorIs(t, s.SetupFFT(fft.Estimate, 10000000), ErrInvalidFFTSize)
	assert.ErrorIs(t, s.SetupFFT(fft.Estimate, 1000), ErrInvalidFFTSize)
	assert.Equal(t, 12, s.FFTSize())
}

func TestSetLockerOnce(t *testing.T) {
	s := &State{}
	var mu sync.Mutex
	require.NoError(t, s.SetLocker(&mu))
	assert.ErrorIs(t, s.SetLocker(&sync.Mutex{}), sdr.ErrInvalidParam)
	assert.ErrorIs(t, s.SetLocker(nil), sdr.ErrInvalidParam)

	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	assert.Same(t, &mu, s.locker())
}

func TestStartProgramsDevice(t *testing.T) {
	s, dev := newTestState(t, OutputText, nil)
	require.NoError(t, s.Start(0))

	assert.Equal(t, []uint16{2400, 2420}, dev.freqs)
	assert.Equal(t, uint32(sdr.BytesPerBlock), dev.bytesPerBlock)
	assert.Equal(t, uint32(20000000), dev.step)
	assert.Equal(t, uint32(Offset), dev.offset)
	assert.Equal(t, sdr.Interleaved, dev.style)
	assert.NotNil(t, dev.fn)

	st := s.Snapshot()
	assert.Equal(t, Running, st.Run)
	assert.Equal(t, Continuous, st.Finiteness)
	assert.False(t, st.Exiting)

	assert.ErrorIs(t, s.SetRange(Range{MinMHz: 100, MaxMHz: 200}), ErrNotReady)
	assert.ErrorIs(t, s.SetupFFT(fft.Estimate, 0), ErrNotReady)
}

func TestStartNeedsSetup(t *testing.T) {
	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	assert.ErrorIs(t, s.Start(0), ErrNotReady)

	require.NoError(t, s.SetOutput(OutputText, SinkDiscard, nil))
	assert.ErrorIs(t, s.Start(0), ErrNotReady)

	require.NoError(t, s.SetBlockCallback(func(*State, *sdr.Transfer) Action { return Continue }, true))
	assert.NoError(t, s.Start(0))
}

func TestStartDeviceError(t *testing.T) {
	s, dev := newTestState(t, OutputText, nil)
	dev.initErr = sdr.ErrBusy
	assert.ErrorIs(t, s.Start(1), sdr.ErrBusy)
	assert.Equal(t, Stopped, s.Snapshot().Run)

	dev.initErr = nil
	dev.startErr = sdr.ErrLibUSB
	assert.ErrorIs(t, s.Start(1), sdr.ErrLibUSB)
	assert.Equal(t, Stopped, s.Snapshot().Run)
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestState(t, OutputText, nil)
	require.NoError(t, s.Start(0))

	require.NoError(t, s.Stop())
	first := s.Snapshot()
	require.NoError(t, s.Stop())
	assert.Equal(t, first, s.Snapshot())
	assert.Equal(t, Stopped, first.Run)
	assert.True(t, first.Exiting)
	assert.Zero(t, s.SweepCount())
	assert.Zero(t, s.ByteCount())

	require.NoError(t, s.Start(0))
	assert.False(t, s.Snapshot().Exiting)
}

func TestClose(t *testing.T) {
	s, _ := newTestState(t, OutputText, nil)
	require.NoError(t, s.Close())

	st := s.Snapshot()
	assert.Equal(t, Released, st.Lifecycle)
	assert.Equal(t, Stopped, st.Run)
	assert.Zero(t, s.FFTSize())

	assert.ErrorIs(t, s.Close(), ErrNotReady)
	assert.ErrorIs(t, s.Start(0), ErrNotReady)
	assert.ErrorIs(t, s.SetOutput(OutputText, SinkDiscard, nil), ErrNotReady)
	assert.ErrorIs(t, s.SetBlockCallback(nil, false), ErrNotReady)

	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	assert.Equal(t, Initialized, s.Snapshot().Lifecycle)
}

func TestWisdomRoundTrip(t *testing.T) {
	path := t.TempDir() + "/wisdom.yaml"

	s := &State{}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	require.NoError(t, s.SetupFFT(fft.Measure, 0))
	require.NoError(t, s.ExportWisdom(path))

	other := &State{}
	require.NoError(t, other.Init(&fakeDevice{}, 0, 0))
	require.NoError(t, other.ImportWisdom(path))
	assert.Equal(t, 1, other.wisdom.Len())

	assert.ErrorIs(t, (&State{}).ImportWisdom(path), ErrNotReady)
}

func TestSnapshotString(t *testing.T) {
	s, _ := newTestState(t, OutputText, nil)
	assert.Equal(t, "initialized/stopped/continuous exiting=false output=true started=false bypass=false normalized=false", s.Snapshot().String())
}

var errWrite = errors.New("disk full")

type failingWriter struct{ calls int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.calls++
	return 0, errWrite
}

// countingLocker wraps a mutex and counts how often it is taken.
type countingLocker struct {
	mu      sync.Mutex
	locks   int
	unlocks int
}

func (c *countingLocker) Lock() {
	c.mu.Lock()
	c.locks++
}

func (c *countingLocker) Unlock() {
	c.unlocks++
	c.mu.Unlock()
}

func (c *countingLocker) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The call itself is one lock that is not released yet.
	return c.locks - 1, c.unlocks
}

func TestInjectedLockerGuardsPipeline(t *testing.T) {
	cl := &countingLocker{}
	s := &State{now: time.Now}
	require.NoError(t, s.SetLocker(cl))
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	require.NoError(t, s.SetOutput(OutputText, SinkDiscard, nil))
	require.NoError(t, s.SetRange(Range{MinMHz: 2400, MaxMHz: 2420}))
	require.NoError(t, s.SetupFFT(fft.Estimate, 0))

	heldInCallback := false
	size := 0
	require.NoError(t, s.SetSpectrumCallback(func(st *State, _ *Spectrum, _ *sdr.Transfer) Action {
		if cl.mu.TryLock() {
			cl.mu.Unlock()
		} else {
			heldInCallback = true
		}
		size = st.FFTSize()
		return Continue
	}))
	require.NoError(t, s.Start(0))

	before, _ := cl.counts()
	require.Zero(t, s.handleTransfer(transfer(testStart, testSecond)))
	locks, unlocks := cl.counts()

	assert.Greater(t, locks, before)
	assert.Equal(t, locks, unlocks)
	assert.False(t, heldInCallback)
	assert.Equal(t, 20, size)
	assert.Equal(t, uint64(2*sdr.BytesPerBlock), s.ByteCount())
}

func TestConfigureWaitsForRunningCallback(t *testing.T) {
	s, _ := newTestState(t, OutputText, nil)
	entered := make(chan struct{})
	var callbackDone atomic.Bool
	size := 0
	require.NoError(t, s.SetSpectrumCallback(func(st *State, _ *Spectrum, _ *sdr.Transfer) Action {
		select {
		case <-entered:
		default:
			close(entered)
		}
		time.Sleep(50 * time.Millisecond)
		size = st.FFTSize()
		callbackDone.Store(true)
		return Continue
	}))
	require.NoError(t, s.Start(0))

	go s.handleTransfer(transfer(testStart, testSecond))
	<-entered
	require.NoError(t, s.Stop())

	done := make(chan error, 1)
	go func() { done <- s.SetRange(Range{MinMHz: 100, MaxMHz: 200}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("SetRange did not return while a callback was running")
	}
	assert.True(t, callbackDone.Load())
	assert.Equal(t, 20, size)
	assert.Equal(t, []Range{{MinMHz: 100, MaxMHz: 200, Steps: 5}}, s.Ranges())
}

func TestCloseKeepsInjectedLocker(t *testing.T) {
	var mu sync.Mutex
	s := &State{}
	require.NoError(t, s.SetLocker(&mu))
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.SweepCount()
				s.Snapshot()
			}
		}
	}()
	require.NoError(t, s.Close())
	close(stop)
	wg.Wait()

	assert.Same(t, &mu, s.locker())
}

func TestBypassNeedsTransformToTurnOff(t *testing.T) {
	s := &State{now: time.Now}
	require.NoError(t, s.Init(&fakeDevice{}, 0, 0))
	require.NoError(t, s.SetOutput(OutputText, SinkDiscard, nil))
	require.NoError(t, s.SetBlockCallback(func(*State, *sdr.Transfer) Action { return Continue }, true))
	require.NoError(t, s.Start(0))

	require.Zero(t, s.handleTransfer(transfer(0)))
	assert.ErrorIs(t, s.SetBlockCallback(nil, false), ErrNotReady)
	assert.True(t, s.Snapshot().BypassFFT)

	// Even with bypass cleared the pipeline skips analysis without a plan.
	s.mu.Lock()
	s.status.BypassFFT = false
	s.mu.Unlock()
	assert.NotPanics(t, func() {
		assert.Zero(t, s.handleTransfer(transfer(20000000, 40000000)))
	})
	assert.Equal(t, uint64(0), s.SweepCount())
}
