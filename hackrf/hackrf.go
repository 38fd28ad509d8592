package hackrf

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/sweep"
)

const SourceName = "hackrf"

// SDR collects samples by running the sweep engine in-process against a
// HackRF style device and aggregating the resulting bins per frequency.
type SDR struct {
	Identifier string
	Device     sdr.Device
	Effort     fft.Effort
	// MaxSweeps ends collection after that many sweeps, 0 runs until the
	// device stops streaming.
	MaxSweeps uint64

	agg sdr.Aggregator
}

func (s *SDR) Name() string {
	return SourceName
}

func (s *SDR) Sweep(opts *sdr.Options, samples chan<- sdr.Sample) error {
	if s.Device == nil {
		return fmt.Errorf("no device configured")
	}
	if opts.HighFreq <= opts.LowFreq || opts.HighFreq > sdr.FreqMaxMHz*sdr.FreqOneMHz {
		return fmt.Errorf("invalid frequency range %d-%d Hz", opts.LowFreq, opts.HighFreq)
	}
	if opts.IntegrationInterval <= 0 {
		return fmt.Errorf("integration interval must be positive, got %s", opts.IntegrationInterval)
	}

	state := &sweep.State{}
	if err := state.Init(s.Device, 0, 0); err != nil {
		return fmt.Errorf("unable to initialize sweep: %w", err)
	}
	defer state.Close()
	if err := state.SetOutput(sweep.OutputText, sweep.SinkDiscard, nil); err != nil {
		return err
	}
	r := sweep.Range{
		MinMHz: uint16(opts.LowFreq / sdr.FreqOneMHz),
		MaxMHz: uint16((opts.HighFreq + sdr.FreqOneMHz - 1) / sdr.FreqOneMHz),
	}
	if err := state.SetRange(r); err != nil {
		return fmt.Errorf("unable to set range %d-%d MHz: %w", r.MinMHz, r.MaxMHz, err)
	}
	if err := state.SetupFFT(s.Effort, opts.BinSize); err != nil {
		return fmt.Errorf("unable to set up FFT for %d Hz bins: %w", opts.BinSize, err)
	}
	if err := state.SetSpectrumCallback(func(_ *sweep.State, sp *sweep.Spectrum, _ *sdr.Transfer) sweep.Action {
		for _, smpl := range s.binSamples(sp, opts) {
			s.agg.Add(smpl)
		}
		return sweep.Continue
	}); err != nil {
		return err
	}

	glog.Infof("Running HackRF sweep %d-%d MHz, %.0f Hz bins\n", r.MinMHz, r.MaxMHz, state.BinWidth())
	if err := state.Start(s.MaxSweeps); err != nil {
		return fmt.Errorf("unable to start sweep: %w", err)
	}

	// Output aggregated samples in regular ticks until the device is done.
	ticker := time.NewTicker(opts.IntegrationInterval)
	defer ticker.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ticker.C:
			for _, smpl := range s.agg.Flush() {
				samples <- smpl
			}
		case <-poll.C:
			if s.Device.IsStreaming() {
				continue
			}
			glog.Infof("HackRF stopped streaming after %d sweeps\n", state.SweepCount())
			for _, smpl := range s.agg.Flush() {
				samples <- smpl
			}
			return nil
		}
	}
}

// binSamples turns both bands of a retune into one sample per bin, keeping
// only bins inside the requested range.
func (s *SDR) binSamples(sp *sweep.Spectrum, opts *sdr.Options) []sdr.Sample {
	binWidth := uint64(sp.BinWidth)
	var out []sdr.Sample
	for _, band := range sp.Bands {
		for i, p := range band.Power {
			low, high := sdr.BinRange(band.LowHz, band.HighHz, binWidth, uint64(i))
			center := (low + high) / 2
			if center < opts.LowFreq || center > opts.HighFreq {
				continue
			}
			db := float64(p)
			out = append(out, sdr.Sample{
				Identifier:  s.Identifier,
				Source:      s.Name(),
				FreqCenter:  center,
				FreqLow:     low,
				FreqHigh:    high,
				DBLow:       db,
				DBHigh:      db,
				DBAvg:       db,
				SampleCount: uint64(sp.Size),
				Start:       sp.Time,
				End:         sp.Time,
			})
		}
	}
	return out
}
