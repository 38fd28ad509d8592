package sdr

import (
	"sort"
	"sync"
)

// Aggregator merges samples of the same center frequency until flushed.
// It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[uint64]Sample
}

// Add merges sample into the bucket of its center frequency.
func (a *Aggregator) Add(sample Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buckets == nil {
		a.buckets = map[uint64]Sample{}
	}
	stored, ok := a.buckets[sample.FreqCenter]
	if !ok {
		a.buckets[sample.FreqCenter] = sample
		return
	}
	a.buckets[sample.FreqCenter] = merge(stored, sample)
}

func merge(stored, sample Sample) Sample {
	if sample.Start.Before(stored.Start) {
		stored.Start = sample.Start
	}
	if sample.End.After(stored.End) {
		stored.End = sample.End
	}
	total := stored.SampleCount + sample.SampleCount
	if total > 0 {
		stored.DBAvg = (stored.DBAvg*float64(stored.SampleCount) + sample.DBAvg*float64(sample.SampleCount)) / float64(total)
	}
	if sample.DBLow < stored.DBLow {
		stored.DBLow = sample.DBLow
	}
	if sample.DBHigh > stored.DBHigh {
		stored.DBHigh = sample.DBHigh
	}
	stored.SampleCount = total
	return stored
}

// Flush returns the aggregated samples ordered by frequency and starts
// over with empty buckets.
func (a *Aggregator) Flush() []Sample {
	a.mu.Lock()
	old := a.buckets
	a.buckets = nil
	a.mu.Unlock()

	samples := make([]Sample, 0, len(old))
	for _, s := range old {
		samples = append(samples, s)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].FreqCenter < samples[j].FreqCenter })
	return samples
}

// Len is the number of buckets currently held.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}
