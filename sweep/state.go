// Package sweep drives an SDR through repeated retuning and turns every
// captured block into a power spectrum.
package sweep

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/sdr"
)

// Offset is added to every tuned frequency by the device so that the
// wanted quarters of the spectrum sit away from the DC spike.
const Offset = 7500000

// Action is returned by callbacks to say whether they want to be called
// again.
type Action int

const (
	Continue Action = iota
	// Stop deregisters the callback. Streaming goes on.
	Stop
)

// BlockFunc receives every raw transfer before any analysis.
type BlockFunc func(s *State, t *sdr.Transfer) Action

// SpectrumFunc receives every analyzed retune. sp is reused by the
// pipeline and only valid during the call.
type SpectrumFunc func(s *State, sp *Spectrum, t *sdr.Transfer) Action

// State is one sweep session. The zero value is ready for Init.
//
// Control methods may be called from any goroutine. Callbacks run on the
// device goroutine and may call Stop, the Set*Callback methods and the
// accessors, but never Start, Close or the configuration methods.
type State struct {
	// lock guards status, callbacks, counters, the transfer time and the
	// published configuration. It is either injected with SetLocker or
	// falls back to mu.
	lock atomic.Pointer[lockerRef]
	mu   sync.Mutex

	// ctlMu serializes control calls. The pipeline never takes it.
	ctlMu sync.Mutex
	// transfers counts pipeline calls in flight. Configuration is only
	// written once it drops to zero with the state stopped.
	transfers sync.WaitGroup

	dev               sdr.Device
	ranges            []Range
	tuneStep          uint32
	sampleRate        uint32
	blocksPerTransfer int
	maxSweeps         uint64

	mode OutputMode
	sink SinkType
	out  io.Writer
	enc  encoder

	onBlock    BlockFunc
	onSpectrum SpectrumFunc

	status       Status
	sweepCount   uint64
	byteCount    uint64
	transferTime time.Time
	now          func() time.Time

	engine      engine
	wisdom      *fft.Wisdom
	spectrum    Spectrum
	writeErrors uint64
}

type lockerRef struct{ sync.Locker }

func (s *State) locker() sync.Locker {
	if r := s.lock.Load(); r != nil {
		return r.Locker
	}
	return &s.mu
}

// idle waits for pipeline calls still running after the state left
// Running. Callers hold ctlMu and have seen the state stopped, so no new
// call can register meanwhile.
func (s *State) idle() {
	s.transfers.Wait()
}

// Init binds the state to a device. A zero sampleRate selects
// sdr.DefaultSampleRate, a zero tuneStep the sample rate rounded down to
// whole MHz. The tuning table starts out as the full band.
func (s *State) Init(dev sdr.Device, sampleRate, tuneStep uint32) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	l := s.locker()
	l.Lock()
	defer l.Unlock()

	if s.status.Lifecycle == Initialized || dev == nil {
		return sdr.ErrInvalidParam
	}
	if sampleRate == 0 {
		sampleRate = sdr.DefaultSampleRate
	}
	if tuneStep == 0 {
		tuneStep = sampleRate / sdr.FreqOneMHz * sdr.FreqOneMHz
		if tuneStep == 0 {
			tuneStep = sdr.FreqOneMHz
		}
	}
	if tuneStep%sdr.FreqOneMHz != 0 {
		return sdr.ErrInvalidParam
	}
	ranges, err := planRanges(nil, tuneStep, OutputText)
	if err != nil {
		return err
	}

	s.dev = dev
	s.sampleRate = sampleRate
	s.tuneStep = tuneStep
	s.ranges = ranges
	s.blocksPerTransfer = sdr.BlocksPerTransfer
	s.maxSweeps = 0
	s.mode = OutputText
	s.sink = SinkDiscard
	s.out = nil
	s.sweepCount = 0
	s.byteCount = 0
	s.transferTime = time.Time{}
	if s.now == nil {
		s.now = time.Now
	}
	s.wisdom = fft.NewWisdom()
	s.status = Status{Lifecycle: Initialized}
	glog.V(1).Infof("sweep state initialized: sample rate %d Hz, tune step %d Hz\n", sampleRate, tuneStep)
	return nil
}

// SetLocker installs the lock used for everything the pipeline shares with
// control calls. It can be installed once and only while stopped.
func (s *State) SetLocker(l sync.Locker) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if l == nil || s.lock.Load() != nil {
		return sdr.ErrInvalidParam
	}
	s.mu.Lock()
	running := s.status.Run == Running
	s.mu.Unlock()
	if running {
		return ErrNotReady
	}
	s.idle()
	s.lock.Store(&lockerRef{l})
	return nil
}

// SetOutput selects the encoding and the destination of results. w is
// required for SinkWriter and ignored for SinkDiscard.
func (s *State) SetOutput(mode OutputMode, sink SinkType, w io.Writer) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if !s.stopped() {
		return ErrNotReady
	}
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if mode < OutputText || mode >= outputModeLast {
		return sdr.ErrInvalidParam
	}
	if mode == OutputInverse && len(s.ranges) > 1 {
		return ErrIncompatibleMode
	}
	switch sink {
	case SinkDiscard:
		s.out = nil
	case SinkWriter:
		if w == nil {
			return sdr.ErrInvalidParam
		}
		s.out = w
	default:
		return sdr.ErrInvalidParam
	}
	s.mode = mode
	s.sink = sink
	s.status.OutputSet = true
	return nil
}

// SetRange replaces the tuning table. An empty call selects the full band.
// A rejected table leaves the previous one in place.
func (s *State) SetRange(ranges ...Range) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if !s.stopped() {
		return ErrNotReady
	}
	l := s.locker()
	l.Lock()
	defer l.Unlock()

	if !s.status.OutputSet {
		return ErrNotReady
	}
	planned, err := planRanges(ranges, s.tuneStep, s.mode)
	if err != nil {
		return err
	}
	s.ranges = planned
	for _, r := range planned {
		glog.V(1).Infof("sweeping %d MHz to %d MHz in %d steps\n", r.MinMHz, r.MaxMHz, r.Steps)
	}
	return nil
}

// SetupFFT sizes the transform for the requested bin width (Hz, 0 for the
// default size) and builds its plans with the given planning effort.
func (s *State) SetupFFT(effort fft.Effort, binWidth uint32) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if !s.stopped() {
		return ErrNotReady
	}

	size, err := fftSize(s.sampleRate, binWidth)
	if err != nil {
		return err
	}
	inverse := 0
	if s.mode == OutputInverse {
		inverse = size * totalSteps(s.ranges)
	}
	// Plans are built on a fresh engine so a failure keeps the old one.
	var e engine
	if err := e.setup(size, s.sampleRate, effort, inverse, s.wisdom); err != nil {
		return err
	}
	l := s.locker()
	l.Lock()
	s.engine = e
	l.Unlock()
	glog.V(1).Infof("fft size %d, bin width %.2f Hz, effort %s\n", size, e.binWidth, effort)
	return nil
}

// SetBlockCallback registers fn for raw transfers. With bypass set no
// analysis or output happens at all.
//
// Bypass cannot be turned off while running without a transform set up.
func (s *State) SetBlockCallback(fn BlockFunc, bypass bool) error {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if s.status.Lifecycle != Initialized {
		return ErrNotReady
	}
	if !bypass && s.status.Run == Running && !s.engine.ready() {
		return ErrNotReady
	}
	s.onBlock = fn
	s.status.BypassFFT = bypass
	return nil
}

// SetSpectrumCallback registers fn for analyzed retunes.
func (s *State) SetSpectrumCallback(fn SpectrumFunc) error {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if s.status.Lifecycle != Initialized {
		return ErrNotReady
	}
	s.onSpectrum = fn
	return nil
}

// SetNormalizedTimestamp makes every block of a sweep carry the time the
// sweep started instead of the time of its transfer.
func (s *State) SetNormalizedTimestamp(normalized bool) error {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if s.status.Lifecycle != Initialized {
		return ErrNotReady
	}
	s.status.NormalizedTimestamp = normalized
	return nil
}

// SetBlocksPerTransfer tells the pipeline how many blocks each transfer
// carries.
func (s *State) SetBlocksPerTransfer(n int) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if !s.stopped() {
		return ErrNotReady
	}
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if n < 1 {
		return sdr.ErrInvalidParam
	}
	s.blocksPerTransfer = n
	return nil
}

// stopped reports whether the state is initialized and not running, and
// waits for the pipeline to let go of the configuration. Callers hold
// ctlMu.
func (s *State) stopped() bool {
	l := s.locker()
	l.Lock()
	ok := s.status.configurable()
	l.Unlock()
	if ok {
		s.idle()
	}
	return ok
}

// Start programs the device and starts streaming. maxSweeps 1 stops after
// one sweep, larger values after that many, 0 keeps the previous choice.
// A running session is stopped first.
func (s *State) Start(maxSweeps uint64) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	l := s.locker()
	l.Lock()
	if s.status.Lifecycle != Initialized || !s.status.OutputSet {
		l.Unlock()
		return ErrNotReady
	}
	bypass := s.status.BypassFFT
	if !bypass && !s.engine.ready() {
		l.Unlock()
		return ErrNotReady
	}
	s.status.Run = Stopped
	l.Unlock()
	s.idle()

	e := s.engine
	if s.mode == OutputInverse && !bypass {
		if err := e.ensureInverse(e.size*totalSteps(s.ranges), s.wisdom); err != nil {
			return err
		}
	}
	if err := s.dev.InitSweep(tuningTable(s.ranges), sdr.BytesPerBlock, s.tuneStep, Offset, sdr.Interleaved); err != nil {
		return err
	}

	l.Lock()
	s.engine = e
	s.status.SweepStarted = false
	s.status.Exiting = false
	s.sweepCount = 0
	s.byteCount = 0
	s.transferTime = time.Time{}
	switch {
	case maxSweeps == 1:
		s.status.Finiteness = OneShot
	case maxSweeps > 1:
		s.status.Finiteness = Finite
	}
	if maxSweeps > 0 {
		s.maxSweeps = maxSweeps
	}
	s.status.Run = Running
	l.Unlock()

	if err := s.dev.StartRxSweep(s.handleTransfer); err != nil {
		l.Lock()
		s.status.Run = Stopped
		l.Unlock()
		return err
	}
	return nil
}

// Stop asks the pipeline to stop at its next block. It is safe to call
// repeatedly and from callbacks.
func (s *State) Stop() error {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	if s.status.Lifecycle != Initialized {
		return ErrNotReady
	}
	s.status.Exiting = true
	s.status.Run = Stopped
	s.sweepCount = 0
	s.byteCount = 0
	return nil
}

// Close stops the session, waits for the pipeline to return and releases
// the transform. The state must not be used afterwards except for a fresh
// Init. An injected lock stays installed.
func (s *State) Close() error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if err := s.Stop(); err != nil {
		return err
	}
	s.idle()

	l := s.locker()
	l.Lock()
	s.onBlock = nil
	s.onSpectrum = nil
	s.status.Lifecycle = Released
	s.engine = engine{}
	s.dev = nil
	s.out = nil
	l.Unlock()

	s.wisdom.Forget()
	return nil
}

// ImportWisdom loads planning results, from the system file if path is
// empty.
func (s *State) ImportWisdom(path string) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if s.wisdom == nil {
		return ErrNotReady
	}
	return s.wisdom.Import(path)
}

// ExportWisdom saves the planning results gathered so far.
func (s *State) ExportWisdom(path string) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	if s.wisdom == nil {
		return ErrNotReady
	}
	return s.wisdom.Export(path)
}

func (s *State) SweepCount() uint64 {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.sweepCount
}

func (s *State) ByteCount() uint64 {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.byteCount
}

// ResetByteCount zeroes the byte counter, for rate reporting.
func (s *State) ResetByteCount() {
	l := s.locker()
	l.Lock()
	s.byteCount = 0
	l.Unlock()
}

// Snapshot returns a copy of the lifecycle state.
func (s *State) Snapshot() Status {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.status
}

func (s *State) FFTSize() int {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.engine.size
}

func (s *State) BinWidth() float64 {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.engine.binWidth
}

func (s *State) SampleRate() uint32 {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.sampleRate
}

func (s *State) TuneStep() uint32 {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return s.tuneStep
}

// Ranges returns a copy of the planned tuning table.
func (s *State) Ranges() []Range {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return append([]Range(nil), s.ranges...)
}

// StepCount is the number of retunes in one sweep.
func (s *State) StepCount() int {
	l := s.locker()
	l.Lock()
	defer l.Unlock()
	return totalSteps(s.ranges)
}
