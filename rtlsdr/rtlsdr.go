package rtlsdr

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/sdr"
)

const (
	SourceName = "rtlsdr"
	sweepAlias = "rtl_power"
)

// SDR runs rtl_power, whose rows share the sweeper text format, and
// aggregates them like a replayed recording.
type SDR struct {
	Identifier string
	// Command overrides the rtl_power binary.
	Command string
}

func (s *SDR) Name() string {
	return SourceName
}

func args(opts *sdr.Options) []string {
	interval := int(opts.IntegrationInterval / time.Second)
	if interval < 1 {
		interval = 1
	}
	return []string{
		"-f", fmt.Sprintf("%d:%d:%d", opts.LowFreq, opts.HighFreq, opts.BinSize),
		"-i", fmt.Sprintf("%ds", interval),
		"-", // dumps samples to stdout
	}
}

func (s *SDR) Sweep(opts *sdr.Options, samples chan<- sdr.Sample) error {
	name := s.Command
	if name == "" {
		name = sweepAlias
	}
	cmd := exec.Command(name, args(opts)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	glog.Infof("Running RTL SDR sweep: %q\n", cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start %s: %w", name, err)
	}

	r := &sdr.Replay{Identifier: s.Identifier, Reader: out, Source: s.Name()}
	scanErr := r.Sweep(opts, samples)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s exited: %w", name, err)
	}
	return scanErr
}
