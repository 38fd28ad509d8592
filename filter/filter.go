package filter

import "github.com/hb9tf/sweeper/sdr"

type Filterer interface {
	ShouldIgnore(*sdr.Sample) bool
}

// Filter forwards every sample no filter ignores. output is closed once
// input is drained.
func Filter(input <-chan sdr.Sample, output chan<- sdr.Sample, filters []Filterer) error {
	defer close(output)
	for s := range input {
		if ignored(&s, filters) {
			continue
		}
		output <- s
	}
	return nil
}

func ignored(s *sdr.Sample, filters []Filterer) bool {
	for _, f := range filters {
		if f.ShouldIgnore(s) {
			return true
		}
	}
	return false
}

// FilterFreq drops samples that do not overlap [FreqLow, FreqHigh].
type FilterFreq struct {
	FreqHigh uint64
	FreqLow  uint64
}

func (f *FilterFreq) ShouldIgnore(s *sdr.Sample) bool {
	// Check if low freq of sample is higher than what we want to include.
	if s.FreqLow > f.FreqHigh {
		return true
	}
	// Check if high freq of sample is lower than what we want to include.
	if s.FreqHigh < f.FreqLow {
		return true
	}
	return false
}

// FilterPower drops samples whose peak stays below MinDB.
type FilterPower struct {
	MinDB float64
}

func (f *FilterPower) ShouldIgnore(s *sdr.Sample) bool {
	return s.DBHigh < f.MinDB
}
