package main

/*
This application collects aggregated spectrum samples and exports them.

Samples come from the in-process sweep engine driving a HackRF (emulated
unless a device backend is linked in), from rtl_power or from a replayed
text recording.
*/

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hb9tf/sweeper/export"
	"github.com/hb9tf/sweeper/fft"
	"github.com/hb9tf/sweeper/filter"
	"github.com/hb9tf/sweeper/hackrf"
	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/rtlsdr"
	"github.com/hb9tf/sweeper/sdr"
)

// Flags
var (
	identifier          = flag.String("id", "", "unique identifier of source instance (defaults to a random UUID)")
	lowFreq             = flag.Uint64("lowFreq", 2400000000, "lower frequency boundary in Hz")
	highFreq            = flag.Uint64("highFreq", 2500000000, "upper frequency boundary in Hz")
	binSize             = flag.Uint("binSize", 100000, "size of the bin in Hz")
	integrationInterval = flag.Duration("integrationInterval", 5*time.Second, "duration to aggregate samples")
	sdrType             = flag.String("sdr", hackrf.SourceName, "Sample source to use (one of: hackrf, rtlsdr, replay)")
	output              = flag.String("output", "", "Export mechanism to use (one of: csv, sqlite, mysql, spectre)")
	metricsAddr         = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100.")

	// HackRF
	tones     = flag.String("tones", "", "Carriers for the emulated HackRF, freqHz[:amplitude] separated by commas.")
	effort    = flag.String("effort", "estimate", "FFT plan effort (one of: estimate, measure, patient, exhaustive).")
	maxSweeps = flag.Uint64("maxSweeps", 0, "Stop after this many sweeps, 0 sweeps until interrupted.")

	// Replay
	input = flag.String("input", "", "Text sweep recording to replay, - for stdin.")

	// Filters
	filterLow   = flag.Uint64("filterLow", 0, "Drop samples entirely below this frequency in Hz.")
	filterHigh  = flag.Uint64("filterHigh", 0, "Drop samples entirely above this frequency in Hz.")
	filterMinDB = flag.Float64("filterMinDB", 0, "Drop samples whose peak power is below this level in dB, 0 disables.")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/sweeper.db", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "spectre", "Name of the DB to use.")

	// Spectre Server
	spectreServer        = flag.String("spectreServer", "https://localhost:8443", "URL scheme, address and port of the spectre server.")
	spectreServerSamples = flag.Int("spectreServerSamples", 0, "Defines how many samples should be sent to the server at once.")
)

func newRadio() (sdr.SDR, error) {
	switch strings.ToLower(*sdrType) {
	case hackrf.SourceName:
		t, err := hackrf.ParseTones(*tones)
		if err != nil {
			return nil, err
		}
		e, err := fft.ParseEffort(*effort)
		if err != nil {
			return nil, err
		}
		dev := hackrf.NewEmulator(t...)
		dev.Pace = 10 * time.Millisecond
		return &hackrf.SDR{
			Identifier: *identifier,
			Device:     dev,
			Effort:     e,
			MaxSweeps:  *maxSweeps,
		}, nil
	case rtlsdr.SourceName:
		return &rtlsdr.SDR{Identifier: *identifier}, nil
	case sdr.ReplaySourceName:
		if *input == "" {
			glog.Exit("-input is required for replay")
		}
		r := os.Stdin
		if *input != "-" {
			f, err := os.Open(*input)
			if err != nil {
				return nil, err
			}
			r = f
		}
		return &sdr.Replay{Identifier: *identifier, Reader: r}, nil
	}
	glog.Exitf("%q is not a supported SDR type, pick one of: hackrf, rtlsdr, replay", *sdrType)
	return nil, nil
}

func newExporter(ctx context.Context, m *metrics.Metrics) (export.Exporter, error) {
	switch strings.ToLower(*output) {
	case "csv":
		return &export.CSV{Metrics: m}, nil
	case "sqlite":
		db, err := export.OpenSQLite(*sqliteFile)
		if err != nil {
			return nil, err
		}
		s := &export.SQL{DB: db, Dialect: export.SQLiteDialect, Metrics: m}
		return s, s.Init(ctx)
	case "mysql":
		db, err := export.OpenMySQL(export.MySQLOptions{
			Server:       *mysqlServer,
			User:         *mysqlUser,
			PasswordFile: *mysqlPasswordFile,
			DBName:       *mysqlDBName,
		})
		if err != nil {
			return nil, err
		}
		s := &export.SQL{DB: db, Dialect: export.MySQLDialect, Metrics: m}
		return s, s.Init(ctx)
	case "spectre":
		return &export.SpectreServer{
			Server:            *spectreServer,
			SendSamplesAmount: *spectreServerSamples,
			Metrics:           m,
		}, nil
	}
	glog.Exitf("%q is not a supported export method, pick one of: csv, sqlite, mysql, spectre", *output)
	return nil, nil
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	if *identifier == "" {
		*identifier = uuid.NewString()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*metricsAddr, prometheus.DefaultGatherer); err != nil {
				glog.Warningf("metrics server stopped: %s\n", err)
			}
		}()
	}

	radio, err := newRadio()
	if err != nil {
		glog.Exitf("unable to set up %s: %s", *sdrType, err)
	}
	opts := &sdr.Options{
		LowFreq:             *lowFreq,
		HighFreq:            *highFreq,
		BinSize:             uint32(*binSize),
		IntegrationInterval: *integrationInterval,
	}

	exporter, err := newExporter(ctx, m)
	if err != nil {
		glog.Exitf("unable to set up %s export: %s", *output, err)
	}

	var filters []filter.Filterer
	if *filterLow > 0 || *filterHigh > 0 {
		high := *filterHigh
		if high == 0 {
			high = sdr.FreqMaxMHz * sdr.FreqOneMHz
		}
		filters = append(filters, &filter.FilterFreq{FreqLow: *filterLow, FreqHigh: high})
	}
	if *filterMinDB != 0 {
		filters = append(filters, &filter.FilterPower{MinDB: *filterMinDB})
	}

	// Run
	samples := make(chan sdr.Sample)
	filtered := make(chan sdr.Sample)
	go func() {
		defer close(samples)
		if err := radio.Sweep(opts, samples); err != nil {
			glog.Exitf("%s stopped: %s", radio.Name(), err)
		}
	}()
	go filter.Filter(samples, filtered, filters)

	if err := exporter.Write(ctx, filtered); err != nil {
		glog.Exitf("export failed: %s", err)
	}
}
