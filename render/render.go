package main

/*
This application renders waterfalls from recorded sweeps.

It reads packed binary recordings (sweeper -B), text recordings
(sweeper default output) or samples stored in sqlite by the collector.
*/

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/export"
	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/waterfall"
)

// Flags
var (
	input        = flag.String("input", "", "Recording to render, - for stdin.")
	format       = flag.String("format", "binary", "Format of -input (one of: binary, text).")
	sqliteFile   = flag.String("sqliteFile", "", "Render samples from this sqlite DB instead of -input.")
	startFreq    = flag.Uint64("startFreq", 0, "Select samples starting with this frequency in Hz (sqlite only).")
	endFreq      = flag.Uint64("endFreq", 0, "Select samples up to this frequency in Hz (sqlite only).")
	startTimeRaw = flag.String("startTime", "2000-01-02T15:04:05", "Select samples collected after this time (sqlite only). Format: 2006-01-02T15:04:05")
	endTimeRaw   = flag.String("endTime", "2100-01-02T15:04:05", "Select samples collected before this time (sqlite only). Format: 2006-01-02T15:04:05")
	imgPath      = flag.String("imgPath", "/tmp/out.png", "Path where the rendered image should be written to (.png or .jpg).")
	imgWidth     = flag.Int("imgWidth", 0, "Width of output image in pixels, 0 to derive it from the data.")
	imgHeight    = flag.Int("imgHeight", 0, "Height of output image in pixels, 0 to derive it from the data.")
	addGrid      = flag.Bool("grid", true, "Draw a frequency/time grid around the waterfall.")
)

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// readText parses text sweep output, skipping lines it cannot parse.
func readText(r io.Reader) ([]waterfall.Point, error) {
	var samples []sdr.Sample
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		row, err := sdr.ParseRow(scanner.Text(), "", "")
		if err != nil {
			glog.Warningf("error parsing line: %s\n", err)
			continue
		}
		samples = append(samples, row...)
	}
	return waterfall.FromSamples(samples), scanner.Err()
}

func loadPoints(ctx context.Context) ([]waterfall.Point, func(int64) string, error) {
	if *sqliteFile != "" {
		startTime, err := time.ParseInLocation(waterfall.TimeFmt, *startTimeRaw, time.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse startTime (value: %q, format: %q): %w", *startTimeRaw, waterfall.TimeFmt, err)
		}
		endTime, err := time.ParseInLocation(waterfall.TimeFmt, *endTimeRaw, time.Local)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse endTime (value: %q, format: %q): %w", *endTimeRaw, waterfall.TimeFmt, err)
		}
		db, err := export.OpenSQLite(*sqliteFile)
		if err != nil {
			return nil, nil, err
		}
		defer db.Close()
		store := &export.SQL{DB: db, Dialect: export.SQLiteDialect}
		samples, err := store.Read(ctx, export.Query{FreqLow: *startFreq, FreqHigh: *endFreq, Start: startTime, End: endTime, Limit: 10000000})
		if err != nil {
			return nil, nil, err
		}
		return waterfall.FromSamples(samples), waterfall.TimeLabel, nil
	}

	if *input == "" {
		return nil, nil, fmt.Errorf("one of -input or -sqliteFile is required")
	}
	f, err := openInput(*input)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<16)

	switch strings.ToLower(*format) {
	case "binary":
		points, err := waterfall.FromRecords(r)
		return points, waterfall.SweepLabel, err
	case "text":
		points, err := readText(r)
		return points, waterfall.TimeLabel, err
	}
	return nil, nil, fmt.Errorf("%q is not a supported format, pick one of: binary, text", *format)
}

func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch {
	case strings.HasSuffix(path, ".png"):
		err = png.Encode(f, img)
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
	default:
		err = fmt.Errorf("unsupported image type %q, use .png or .jpg", path)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	points, label, err := loadPoints(context.Background())
	if err != nil && len(points) == 0 {
		glog.Exitf("unable to load data: %s", err)
	}
	if err != nil {
		glog.Warningf("recording ended early, rendering what was read: %s\n", err)
	}

	res, err := waterfall.Render(points, waterfall.Options{
		Width:    *imgWidth,
		Height:   *imgHeight,
		AddGrid:  *addGrid,
		RowLabel: label,
	})
	if err != nil {
		glog.Exit(err)
	}

	fmt.Println("Selected source metadata:")
	fmt.Printf("  - Low frequency: %s\n", waterfall.GetReadableFreq(res.LowFreq))
	fmt.Printf("  - High frequency: %s\n", waterfall.GetReadableFreq(res.HighFreq))
	fmt.Printf("  - First row: %s\n", label(res.FirstRow))
	fmt.Printf("  - Last row: %s\n", label(res.LastRow))
	fmt.Printf("  - Rows: %d\n", len(waterfall.DistinctRows(points)))
	fmt.Printf("  - Power: %.2f dB to %.2f dB\n", res.MinDB, res.MaxDB)
	fmt.Printf("Writing %d x %d image to %q\n", res.Image.Bounds().Dx(), res.Image.Bounds().Dy(), *imgPath)
	if err := writeImage(*imgPath, res.Image); err != nil {
		glog.Exitf("unable to write image: %s", err)
	}
}
