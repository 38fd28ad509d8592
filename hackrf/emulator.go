package hackrf

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/sdr"
)

// Tone is a carrier the emulator places in its synthetic spectrum.
type Tone struct {
	FreqHz uint64
	// Amplitude relative to full scale, 0 to 1.
	Amplitude float64
}

// Emulator is an in-process stand-in for a HackRF in sweep mode. It walks
// the programmed tuning table and delivers correctly framed blocks holding
// the configured tones plus noise.
type Emulator struct {
	Tones []Tone
	// Noise is the amplitude of uniform noise relative to full scale.
	Noise float64
	// Pace is the delay between transfers, 0 delivers as fast as possible.
	Pace time.Duration
	// Seed makes the noise reproducible.
	Seed int64

	mu            sync.Mutex
	sampleRate    uint32
	filter        uint32
	lnaGain       uint32
	vgaGain       uint32
	amp           bool
	antenna       bool
	freqs         []uint16
	bytesPerBlock uint32
	stepWidth     uint32
	offset        uint32
	style         sdr.SweepStyle

	streaming atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closed    bool
}

// NewEmulator returns an emulator at the default sample rate.
func NewEmulator(tones ...Tone) *Emulator {
	return &Emulator{
		Tones:      tones,
		Noise:      0.02,
		sampleRate: sdr.DefaultSampleRate,
		filter:     sdr.DefaultBasebandFilterBandwidth,
	}
}

func (e *Emulator) SetSampleRate(hz uint32) error {
	if hz == 0 {
		return sdr.ErrInvalidParam
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleRate = hz
	return nil
}

func (e *Emulator) SetBasebandFilterBandwidth(hz uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = hz
	return nil
}

// SetLNAGain accepts 0 to 40 dB in 8 dB steps.
func (e *Emulator) SetLNAGain(db uint32) error {
	if db > 40 || db%8 != 0 {
		return sdr.ErrInvalidParam
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lnaGain = db
	return nil
}

// SetVGAGain accepts 0 to 62 dB in 2 dB steps.
func (e *Emulator) SetVGAGain(db uint32) error {
	if db > 62 || db%2 != 0 {
		return sdr.ErrInvalidParam
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vgaGain = db
	return nil
}

func (e *Emulator) SetAmpEnable(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.amp = enable
	return nil
}

func (e *Emulator) SetAntennaEnable(enable bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.antenna = enable
	return nil
}

func (e *Emulator) InitSweep(freqs []uint16, bytesPerBlock, stepWidth, offset uint32, style sdr.SweepStyle) error {
	if len(freqs) == 0 || len(freqs)%2 != 0 || len(freqs)/2 > sdr.MaxSweepRanges {
		return sdr.ErrInvalidParam
	}
	for i := 0; i < len(freqs); i += 2 {
		if freqs[i] >= freqs[i+1] {
			return sdr.ErrInvalidParam
		}
	}
	if bytesPerBlock <= sdr.BlockHeaderSize || stepWidth == 0 {
		return sdr.ErrInvalidParam
	}
	if style != sdr.Linear && style != sdr.Interleaved {
		return sdr.ErrInvalidParam
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streaming.Load() {
		return sdr.ErrBusy
	}
	e.freqs = append([]uint16(nil), freqs...)
	e.bytesPerBlock = bytesPerBlock
	e.stepWidth = stepWidth
	e.offset = offset
	e.style = style
	return nil
}

// StartRxSweep starts delivering transfers to fn on a goroutine of its own.
// Streaming ends when fn returns non-zero or StopRx is called.
func (e *Emulator) StartRxSweep(fn sdr.TransferFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return sdr.ErrNotFound
	}
	if e.freqs == nil || fn == nil {
		return sdr.ErrInvalidParam
	}
	if !e.streaming.CompareAndSwap(false, true) {
		return sdr.ErrBusy
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.stream(fn, e.tunings(), e.stop, e.done)
	return nil
}

func (e *Emulator) IsStreaming() bool {
	return e.streaming.Load()
}

// StopRx stops streaming and waits for the streaming goroutine to exit.
func (e *Emulator) StopRx() error {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop = nil
	e.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Wait blocks until streaming has ended.
func (e *Emulator) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Emulator) Close() error {
	if err := e.StopRx(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// tunings lists the header frequency of every block of one sweep.
func (e *Emulator) tunings() []uint64 {
	var out []uint64
	step := uint64(e.stepWidth)
	for i := 0; i < len(e.freqs); i += 2 {
		lo := uint64(e.freqs[i]) * sdr.FreqOneMHz
		hi := uint64(e.freqs[i+1]) * sdr.FreqOneMHz
		for f := lo; f < hi; f += step {
			out = append(out, f)
			if e.style == sdr.Interleaved {
				out = append(out, f+step/4)
			}
		}
	}
	return out
}

func (e *Emulator) stream(fn sdr.TransferFunc, tunings []uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer e.streaming.Store(false)

	e.mu.Lock()
	rate := float64(e.sampleRate)
	offset := uint64(e.offset)
	blockSize := int(e.bytesPerBlock)
	tones := append([]Tone(nil), e.Tones...)
	e.mu.Unlock()

	rng := rand.New(rand.NewSource(e.Seed))
	buf := make([]byte, sdr.BlocksPerTransfer*blockSize)
	t := &sdr.Transfer{Buffer: buf, ValidLength: len(buf)}

	next := 0
	for n := 0; ; n++ {
		select {
		case <-stop:
			return
		default:
		}
		for b := 0; b < sdr.BlocksPerTransfer; b++ {
			block := buf[b*blockSize : (b+1)*blockSize]
			freq := tunings[next]
			next = (next + 1) % len(tunings)
			sdr.PutBlockHeader(block, freq)
			e.synthesize(block[sdr.BlockHeaderSize:], freq+offset, rate, tones, rng)
		}
		if rc := fn(t); rc != 0 {
			glog.V(2).Infof("emulator: callback ended streaming after %d transfers\n", n+1)
			return
		}
		if e.Pace > 0 {
			select {
			case <-stop:
				return
			case <-time.After(e.Pace):
			}
		}
	}
}

// synthesize fills iq with signed 8-bit samples as seen with the local
// oscillator at lo.
func (e *Emulator) synthesize(iq []byte, lo uint64, rate float64, tones []Tone, rng *rand.Rand) {
	type carrier struct{ step, amp float64 }
	var carriers []carrier
	for _, tone := range tones {
		delta := float64(int64(tone.FreqHz) - int64(lo))
		if math.Abs(delta) < rate/2 {
			carriers = append(carriers, carrier{step: 2 * math.Pi * delta / rate, amp: tone.Amplitude})
		}
	}
	for n := 0; n < len(iq)/2; n++ {
		var re, im float64
		if e.Noise > 0 {
			re = e.Noise * (2*rng.Float64() - 1)
			im = e.Noise * (2*rng.Float64() - 1)
		}
		for _, c := range carriers {
			phase := c.step * float64(n)
			re += c.amp * math.Cos(phase)
			im += c.amp * math.Sin(phase)
		}
		iq[2*n] = byte(clampInt8(re * 127))
		iq[2*n+1] = byte(clampInt8(im * 127))
	}
}

func clampInt8(v float64) int8 {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	}
	return int8(math.Round(v))
}
