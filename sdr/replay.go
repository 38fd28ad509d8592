package sdr

import (
	"bufio"
	"fmt"
	"io"

	"github.com/golang/glog"
)

const ReplaySourceName = "replay"

// Replay feeds samples from a text sweep recording instead of a radio.
// Integration windows follow the timestamps in the recording, not the
// wall clock.
type Replay struct {
	Identifier string
	Reader     io.Reader
	// Source tags the samples, ReplaySourceName if empty.
	Source string

	agg Aggregator
}

func (r *Replay) Name() string {
	return ReplaySourceName
}

func (r *Replay) source() string {
	if r.Source != "" {
		return r.Source
	}
	return r.Name()
}

func (r *Replay) Sweep(opts *Options, samples chan<- Sample) error {
	if r.Reader == nil {
		return fmt.Errorf("no recording to replay")
	}
	scanner := bufio.NewScanner(r.Reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var windowStart, last int64
	lines, skipped := 0, 0
	for scanner.Scan() {
		lines++
		row, err := ParseRow(scanner.Text(), r.Identifier, r.source())
		if err != nil {
			skipped++
			glog.Warningf("skipping line %d: %s\n", lines, err)
			continue
		}
		for _, s := range row {
			if opts.HighFreq > 0 && (s.FreqCenter < opts.LowFreq || s.FreqCenter > opts.HighFreq) {
				continue
			}
			ts := s.Start.UnixNano()
			if windowStart == 0 {
				windowStart = ts
			}
			if opts.IntegrationInterval > 0 && ts-windowStart >= opts.IntegrationInterval.Nanoseconds() {
				r.flush(samples)
				windowStart = ts
			}
			last = ts
			r.agg.Add(s)
		}
	}
	r.flush(samples)
	glog.Infof("Replayed %d lines (%d skipped), last sample at %d\n", lines, skipped, last)
	return scanner.Err()
}

func (r *Replay) flush(samples chan<- Sample) {
	for _, s := range r.agg.Flush() {
		samples <- s
	}
}
