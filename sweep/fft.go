package sweep

import (
	"math"

	"github.com/hb9tf/sweeper/fft"
)

const (
	defaultFFTSize = 20
	// The FFT must be at least 4 bins wide so each quarter holds a bin.
	minFFTSize = 4
	// A block carries (BytesPerBlock - header) / 2 = 8187 samples; padded up
	// to an odd multiple of four that leaves 8180 as the largest size.
	maxFFTSize = 8180
)

// fftSize turns a requested bin width into a transform size. The result is
// an odd multiple of four, which keeps the quarter slices clear of the DC
// bin and of the Nyquist edge in interleaved mode.
func fftSize(sampleRate, binWidth uint32) (int, error) {
	size := defaultFFTSize
	if binWidth > 0 {
		size = int(sampleRate / binWidth)
	}
	if size < minFFTSize || size > maxFFTSize {
		return 0, ErrInvalidFFTSize
	}
	for (size+4)%8 != 0 {
		size++
	}
	return size, nil
}

// engine holds the transform plans and buffers of one State.
type engine struct {
	size     int
	binWidth float64
	effort   fft.Effort

	window []float64
	in     []complex128
	out    []complex128
	pwr    []float32
	plan   *fft.Plan

	inverseIn   []complex128
	inverseOut  []complex128
	inversePlan *fft.Plan
}

func (e *engine) ready() bool {
	return e.plan != nil
}

// setup (re)builds the forward transform. inverseBins > 0 also builds the
// inverse transform used for reconstruction.
func (e *engine) setup(size int, sampleRate uint32, effort fft.Effort, inverseBins int, w *fft.Wisdom) error {
	e.release()

	e.size = size
	e.effort = effort
	e.binWidth = float64(sampleRate) / float64(size)
	e.window = make([]float64, size)
	for i := range e.window {
		e.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	e.in = make([]complex128, size)
	e.out = make([]complex128, size)
	e.pwr = make([]float32, size)

	plan, err := fft.NewPlan(e.in, e.out, fft.Forward, effort, w)
	if err != nil {
		e.release()
		return err
	}
	// Run once so the first real transfer does not pay for warm-up.
	plan.Execute()
	e.plan = plan

	if inverseBins > 0 {
		if err := e.setupInverse(inverseBins, w); err != nil {
			e.release()
			return err
		}
	}
	return nil
}

func (e *engine) setupInverse(bins int, w *fft.Wisdom) error {
	e.inverseIn = make([]complex128, bins)
	e.inverseOut = make([]complex128, bins)
	plan, err := fft.NewPlan(e.inverseIn, e.inverseOut, fft.Backward, e.effort, w)
	if err != nil {
		e.inverseIn, e.inverseOut = nil, nil
		return err
	}
	plan.Execute()
	e.inversePlan = plan
	return nil
}

// ensureInverse rebuilds the inverse transform when the tuning table or
// output mode changed after setup.
func (e *engine) ensureInverse(bins int, w *fft.Wisdom) error {
	if !e.ready() || len(e.inverseIn) == bins {
		return nil
	}
	e.inverseIn, e.inverseOut, e.inversePlan = nil, nil, nil
	return e.setupInverse(bins, w)
}

func (e *engine) release() {
	e.size = 0
	e.binWidth = 0
	e.window = nil
	e.in, e.out, e.pwr = nil, nil, nil
	e.plan = nil
	e.inverseIn, e.inverseOut = nil, nil
	e.inversePlan = nil
}

// analyze computes the log power of the last size I/Q pairs in block.
func (e *engine) analyze(block []byte) {
	samples := block[len(block)-2*e.size:]
	for i := 0; i < e.size; i++ {
		w := e.window[i] / 128
		e.in[i] = complex(float64(int8(samples[2*i]))*w, float64(int8(samples[2*i+1]))*w)
	}
	e.plan.Execute()

	scale := 1 / float64(e.size)
	for i, v := range e.out {
		re := real(v) * scale
		im := imag(v) * scale
		e.pwr[i] = float32(10 * math.Log10(re*re+im*im))
	}
}

// lowOffset is the first bin of [f, f+fs/4], highOffset the first bin of
// [f+fs/2, f+3fs/4].
func (e *engine) lowOffset() int  { return 1 + (e.size*5)/8 }
func (e *engine) highOffset() int { return 1 + e.size/8 }

func (e *engine) quarter() int { return e.size / 4 }

func (e *engine) lowBand() []float32 {
	return e.pwr[e.lowOffset() : e.lowOffset()+e.quarter()]
}

func (e *engine) highBand() []float32 {
	return e.pwr[e.highOffset() : e.highOffset()+e.quarter()]
}

// splice copies both quarters of the last transform into the reconstruction
// buffer at the position of freq relative to the sweep start base.
func (e *engine) splice(freq, base uint64) {
	n := len(e.inverseIn)
	if n == 0 || freq < base {
		return
	}
	idx := int(math.Round(float64(freq-base) / e.binWidth))
	idx = (idx + n/2) % n

	q := e.quarter()
	lo := e.lowOffset()
	for i := 0; i < q; i++ {
		e.inverseIn[(idx+i)%n] = e.out[lo+i]
	}

	idx = (idx + e.size/2) % n
	hi := e.highOffset()
	for i := 0; i < q; i++ {
		e.inverseIn[(idx+i)%n] = e.out[hi+i]
	}
}

// reconstruct runs the inverse transform over the spliced sweep and returns
// the normalized time domain signal. The returned slice is reused.
func (e *engine) reconstruct() []complex128 {
	if e.inversePlan == nil {
		return nil
	}
	e.inversePlan.Execute()
	scale := complex(1/float64(len(e.inverseOut)), 0)
	for i := range e.inverseOut {
		e.inverseOut[i] *= scale
	}
	return e.inverseOut
}
