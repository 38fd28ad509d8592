// Package fft adapts gonum's complex FFT to the plan/execute model the
// sweep engine expects: buffers are bound to a plan once, and every
// Execute transforms the plan's input into its output without allocating.
package fft

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Direction of a transform.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	}
	return 0, fmt.Errorf("unknown transform direction %q", s)
}

// Effort is how hard planning works before the plan is used. Anything above
// Estimate times the transform and records the result in Wisdom, so a later
// plan of the same shape can skip the measurement.
type Effort int

const (
	Estimate Effort = iota
	Measure
	Patient
	Exhaustive
)

var effortNames = []string{"estimate", "measure", "patient", "exhaustive"}

func (e Effort) String() string {
	if e < 0 || int(e) >= len(effortNames) {
		return fmt.Sprintf("effort(%d)", int(e))
	}
	return effortNames[e]
}

// ParseEffort accepts estimate, measure, patient or exhaustive.
func ParseEffort(s string) (Effort, error) {
	for i, n := range effortNames {
		if strings.EqualFold(s, n) {
			return Effort(i), nil
		}
	}
	return 0, fmt.Errorf("unknown plan effort %q, pick one of: %s", s, strings.Join(effortNames, ", "))
}

// measureRuns is the number of timed executions per effort level.
var measureRuns = map[Effort]int{
	Measure:    4,
	Patient:    16,
	Exhaustive: 64,
}

// Plan is a transform of fixed size bound to its input and output buffers.
// A Plan is not safe for concurrent use.
type Plan struct {
	dir    Direction
	effort Effort
	in     []complex128
	out    []complex128
	fft    *fourier.CmplxFFT
}

// NewPlan binds in and out to a transform of len(in) points. w may be nil,
// in which case measurements are not remembered.
func NewPlan(in, out []complex128, dir Direction, effort Effort, w *Wisdom) (*Plan, error) {
	if len(in) == 0 {
		return nil, errors.New("transform size must be positive")
	}
	if len(in) != len(out) {
		return nil, fmt.Errorf("input and output lengths differ: %d != %d", len(in), len(out))
	}
	if dir != Forward && dir != Backward {
		return nil, fmt.Errorf("unsupported %s", dir)
	}
	p := &Plan{
		dir:    dir,
		effort: effort,
		in:     in,
		out:    out,
		fft:    fourier.NewCmplxFFT(len(in)),
	}
	if effort > Estimate {
		if _, ok := w.Lookup(len(in), dir, effort); !ok {
			p.measure(w)
		}
	}
	return p, nil
}

// measure times the transform on scratch buffers so the bound buffers keep
// their contents.
func (p *Plan) measure(w *Wisdom) {
	runs := measureRuns[p.effort]
	if runs == 0 {
		runs = measureRuns[Exhaustive]
	}
	src := make([]complex128, len(p.in))
	dst := make([]complex128, len(p.out))
	src[0] = 1
	start := time.Now()
	for i := 0; i < runs; i++ {
		p.transform(dst, src)
	}
	perOp := time.Since(start) / time.Duration(runs)
	glog.V(2).Infof("measured %s plan of size %d: %s/op over %d runs", p.dir, len(p.in), perOp, runs)
	w.Add(Entry{
		Size:      len(p.in),
		Direction: p.dir.String(),
		Effort:    p.effort.String(),
		NsPerOp:   perOp.Nanoseconds(),
	})
}

func (p *Plan) transform(dst, src []complex128) {
	if p.dir == Forward {
		p.fft.Coefficients(dst, src)
		return
	}
	p.fft.Sequence(dst, src)
}

// Execute transforms the bound input into the bound output. Neither
// direction is normalized.
func (p *Plan) Execute() {
	p.transform(p.out, p.in)
}

// Size is the number of points of the transform.
func (p *Plan) Size() int {
	return len(p.in)
}

func (p *Plan) Direction() Direction {
	return p.dir
}
