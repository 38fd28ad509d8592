package main

/*
This application sweeps frequency ranges with a HackRF and writes the
spectra as text, packed binary or inverse transformed binary records.

Output fields in text mode:
	date, time, hz_low, hz_high, hz_bin_width, num_samples, dB, dB, . . .
*/

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/hackrf"
	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/sweep"
)

const outputBufferSize = 8 * 1024

// rangeFlags collects repeated -f min:max values in MHz.
type rangeFlags []sweep.Range

func (r *rangeFlags) String() string {
	parts := make([]string, 0, len(*r))
	for _, rng := range *r {
		parts = append(parts, fmt.Sprintf("%d:%d", rng.MinMHz, rng.MaxMHz))
	}
	return strings.Join(parts, ",")
}

func (r *rangeFlags) Set(s string) error {
	low, high, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("want freq_min:freq_max, got %q", s)
	}
	lo, err := strconv.ParseUint(low, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid freq_min %q: %w", low, err)
	}
	hi, err := strconv.ParseUint(high, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid freq_max %q: %w", high, err)
	}
	if lo >= hi {
		return fmt.Errorf("freq_max must be greater than freq_min")
	}
	if hi > sdr.FreqMaxMHz {
		return fmt.Errorf("freq_max may not be higher than %d", sdr.FreqMaxMHz)
	}
	if len(*r) >= sdr.MaxSweepRanges {
		return fmt.Errorf("specify a maximum of %d frequency ranges", sdr.MaxSweepRanges)
	}
	*r = append(*r, sweep.Range{MinMHz: uint16(lo), MaxMHz: uint16(hi)})
	return nil
}

// Flags
var (
	ranges rangeFlags

	binWidth    = flag.Uint("w", 0, "FFT bin width (frequency resolution) in Hz, 2445-5000000. 0 selects 1000000.")
	wisdomPath  = flag.String("W", "", "Use wisdom file (will be created if necessary).")
	planEffort  = flag.String("P", "measure", "Plan type, one of: estimate, measure, patient, exhaustive.")
	oneShot     = flag.Bool("1", false, "One shot mode.")
	numSweeps   = flag.Uint64("N", 0, "Number of sweeps to perform.")
	binaryOut   = flag.Bool("B", false, "Binary output.")
	inverseOut  = flag.Bool("I", false, "Binary inverse FFT output.")
	normalized  = flag.Bool("n", false, "Keep the same timestamp within a sweep.")
	outPath     = flag.String("r", "-", "Output file, - for stdout.")
	ampEnable   = flag.Int("a", -1, "RX RF amplifier 1=Enable, 0=Disable.")
	antenna     = flag.Int("p", -1, "Antenna port power, 1=Enable, 0=Disable.")
	lnaGain     = flag.Uint("l", 16, "RX LNA (IF) gain, 0-40dB, 8dB steps.")
	vgaGain     = flag.Uint("g", 20, "RX VGA (baseband) gain, 0-62dB, 2dB steps.")
	tones       = flag.String("tones", "", "Carriers for the emulated HackRF, freqHz[:amplitude] separated by commas.")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100.")
)

func init() {
	flag.Var(&ranges, "f", "Minimum and maximum frequencies in MHz as freq_min:freq_max, repeatable.")
}

func outputMode() (sweep.OutputMode, error) {
	switch {
	case *binaryOut && *inverseOut:
		return 0, fmt.Errorf("-B and -I are mutually exclusive")
	case *binaryOut:
		return sweep.OutputBinary, nil
	case *inverseOut:
		if len(ranges) > 1 {
			return 0, fmt.Errorf("only one frequency range is supported in inverse FFT output (-I) mode")
		}
		return sweep.OutputInverse, nil
	}
	return sweep.OutputText, nil
}

// gainWarnings lists the gain settings the device will round.
func gainWarnings(lna, vga uint) []string {
	var w []string
	if lna%8 != 0 {
		w = append(w, "lna_gain (-l) must be a multiple of 8")
	}
	if vga%2 != 0 {
		w = append(w, "vga_gain (-g) must be a multiple of 2")
	}
	return w
}

// switchFlag validates an optional 0/1 flag, -1 meaning unset.
func switchFlag(name string, v int) (set, enable bool, err error) {
	switch v {
	case -1:
		return false, false, nil
	case 0, 1:
		return true, v == 1, nil
	}
	return false, false, fmt.Errorf("%s shall be 0 or 1", name)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func configureRadio(dev sdr.Radio) error {
	glog.Infof("setting sample rate to %.03f MHz\n", float64(sdr.DefaultSampleRate)/sdr.FreqOneMHz)
	if err := dev.SetSampleRate(sdr.DefaultSampleRate); err != nil {
		return fmt.Errorf("unable to set sample rate: %w", err)
	}
	glog.Infof("setting baseband filter bandwidth to %.03f MHz\n", float64(sdr.DefaultBasebandFilterBandwidth)/sdr.FreqOneMHz)
	if err := dev.SetBasebandFilterBandwidth(sdr.DefaultBasebandFilterBandwidth); err != nil {
		return fmt.Errorf("unable to set baseband filter bandwidth: %w", err)
	}
	// The device rounds gains it cannot set exactly, so failures here only warn.
	if err := dev.SetVGAGain(uint32(*vgaGain)); err != nil {
		glog.Warningf("unable to set VGA gain %d dB: %s\n", *vgaGain, err)
	}
	if err := dev.SetLNAGain(uint32(*lnaGain)); err != nil {
		glog.Warningf("unable to set LNA gain %d dB: %s\n", *lnaGain, err)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	mode, err := outputMode()
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}
	effort, err := fft.ParseEffort(*planEffort)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}
	for _, w := range gainWarnings(*lnaGain, *vgaGain) {
		glog.Warningf("warning: %s\n", w)
	}
	setAmp, amp, err := switchFlag("amp_enable (-a)", *ampEnable)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}
	setAntenna, antennaOn, err := switchFlag("antenna_enable (-p)", *antenna)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}
	if len(ranges) == 0 {
		ranges = rangeFlags{{MinMHz: 0, MaxMHz: 6000}}
	}
	t, err := hackrf.ParseTones(*tones)
	if err != nil {
		glog.Exitf("argument error: %s", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*metricsAddr, prometheus.DefaultGatherer); err != nil {
				glog.Warningf("metrics server stopped: %s\n", err)
			}
		}()
	}

	dev := hackrf.NewEmulator(t...)
	dev.Pace = time.Millisecond
	defer func() {
		if err := dev.Close(); err != nil {
			glog.Warningf("unable to close device: %s\n", err)
		}
	}()
	if err := configureRadio(dev); err != nil {
		glog.Errorf("%s\n", err)
		return 1
	}

	f, err := openOutput(*outPath)
	if err != nil {
		glog.Errorf("unable to open output %q: %s\n", *outPath, err)
		return 1
	}
	defer f.Close()
	out := bufio.NewWriterSize(f, outputBufferSize)

	state := &sweep.State{}
	if err := state.Init(dev, sdr.DefaultSampleRate, 0); err != nil {
		glog.Errorf("unable to initialize sweep: %s\n", err)
		return 1
	}
	defer state.Close()
	if err := state.SetNormalizedTimestamp(*normalized); err != nil {
		glog.Errorf("unable to set timestamp mode: %s\n", err)
		return 1
	}
	if err := state.SetOutput(mode, sweep.SinkWriter, out); err != nil {
		glog.Errorf("unable to set output: %s\n", err)
		return 1
	}
	if err := state.SetRange(ranges...); err != nil {
		glog.Errorf("unable to set range %s: %s\n", ranges.String(), err)
		return 1
	}
	if err := state.ImportWisdom(*wisdomPath); err != nil {
		glog.Warningf("wisdom file not loaded, will attempt to create it: %s\n", err)
	}
	if err := state.SetupFFT(effort, uint32(*binWidth)); err != nil {
		glog.Errorf("unable to set up FFT: %s\n", err)
		return 1
	}
	m.SetBinWidth(state.BinWidth())

	maxSweeps := *numSweeps
	if *oneShot {
		maxSweeps = 1
	}
	if err := state.Start(maxSweeps); err != nil {
		glog.Errorf("unable to start sweep: %s\n", err)
		return 1
	}

	if setAmp {
		if err := dev.SetAmpEnable(amp); err != nil {
			glog.Errorf("unable to set amp: %s\n", err)
			return 1
		}
	}
	if setAntenna {
		if err := dev.SetAntennaEnable(antennaOn); err != nil {
			glog.Errorf("unable to set antenna power: %s\n", err)
			return 1
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	exitCode := 0
	interrupted := false
	start := time.Now()
	prev := start
	var sweeps, reported uint64
	var rate float64
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	fmt.Fprintln(os.Stderr, "Stop with Ctrl-C")
loop:
	for dev.IsStreaming() {
		select {
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "Caught signal %s\n", sig)
			interrupted = true
			break loop
		case now := <-ticker.C:
			if now.Sub(prev) < time.Second {
				continue
			}
			sweeps = state.SweepCount()
			rate = float64(sweeps) / now.Sub(start).Seconds()
			bytes := state.ByteCount()
			fmt.Fprintf(os.Stderr, "%d total sweeps completed, %.2f sweeps/second, %.2f KBytes/second\n",
				sweeps, rate, float64(bytes)/1024)
			m.AddSweeps(sweeps - reported)
			m.AddBytes(bytes)
			m.SetSweepRate(rate)
			reported = sweeps
			if bytes == 0 {
				fmt.Fprintln(os.Stderr, "\nCouldn't transfer any data for one second.")
				exitCode = 1
				break loop
			}
			state.ResetByteCount()
			prev = now
		}
	}

	if c := state.SweepCount(); c > sweeps {
		sweeps = c
	}
	if err := state.Stop(); err != nil {
		glog.Warningf("unable to stop sweep: %s\n", err)
	}
	if err := dev.StopRx(); err != nil {
		glog.Warningf("unable to stop streaming: %s\n", err)
	}
	if err := out.Flush(); err != nil {
		glog.Errorf("unable to flush output: %s\n", err)
		exitCode = 1
	}
	if interrupted {
		fmt.Fprintln(os.Stderr, "\nExiting...")
	} else {
		fmt.Fprintf(os.Stderr, "\nExiting... streaming: %t\n", dev.IsStreaming())
	}

	elapsed := time.Since(start).Seconds()
	if rate == 0 && elapsed > 0 {
		rate = float64(sweeps) / elapsed
	}
	fmt.Fprintf(os.Stderr, "Total sweeps: %d in %.5f seconds (%.2f sweeps/second)\n", sweeps, elapsed, rate)

	if *wisdomPath != "" {
		if err := state.ExportWisdom(*wisdomPath); err != nil {
			glog.Warningf("unable to export wisdom to %q: %s\n", *wisdomPath, err)
		}
	}
	return exitCode
}
