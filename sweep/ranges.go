package sweep

import (
	"math"

	"github.com/hb9tf/sweeper/sdr"
)

// Range is one frequency range of the tuning table, in MHz. Steps is filled
// in by the planner and ignored on input.
type Range struct {
	MinMHz uint16
	MaxMHz uint16
	Steps  int
}

// fullBand is the whole tunable range of the device.
var fullBand = Range{MinMHz: sdr.FreqMinMHz, MaxMHz: sdr.FreqMaxMHz}

// planRanges validates ranges and stretches each of them to a whole number
// of tuning steps, so that the pipeline can recognize the start of a sweep
// by an exact frequency match. An empty list plans the full band.
//
// Only the user supplied bounds are checked against the device limits; the
// stretched upper bound may exceed FreqMaxMHz by less than one step, blocks
// tuned above the ceiling are dropped by the pipeline.
func planRanges(ranges []Range, tuneStep uint32, mode OutputMode) ([]Range, error) {
	if len(ranges) == 0 {
		ranges = []Range{fullBand}
	}
	if mode == OutputInverse && len(ranges) > 1 {
		return nil, ErrIncompatibleMode
	}
	if len(ranges) > sdr.MaxSweepRanges {
		return nil, ErrInvalidRangeCount
	}

	step := uint64(tuneStep)
	planned := make([]Range, len(ranges))
	for i, r := range ranges {
		if r.MinMHz > r.MaxMHz ||
			int(r.MinMHz) < sdr.FreqMinMHz || int(r.MaxMHz) > sdr.FreqMaxMHz {
			return nil, ErrInvalidRange
		}
		span := uint64(r.MaxMHz-r.MinMHz) * sdr.FreqOneMHz
		steps := (span + step - 1) / step
		if steps < 1 {
			steps = 1
		}
		top := uint64(r.MinMHz) + steps*step/sdr.FreqOneMHz
		if top > math.MaxUint16 {
			return nil, ErrInvalidRange
		}
		planned[i] = Range{MinMHz: r.MinMHz, MaxMHz: uint16(top), Steps: int(steps)}
	}
	return planned, nil
}

// tuningTable flattens ranges into the (min, max) pairs the device takes.
func tuningTable(ranges []Range) []uint16 {
	table := make([]uint16, 0, 2*len(ranges))
	for _, r := range ranges {
		table = append(table, r.MinMHz, r.MaxMHz)
	}
	return table
}

// totalSteps is the number of retunes in one sweep.
func totalSteps(ranges []Range) int {
	n := 0
	for _, r := range ranges {
		n += r.Steps
	}
	return n
}
