package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
)

var csvHeader = []string{
	"Source",
	"Identifier",
	"FreqCenter",
	"FreqLow",
	"FreqHigh",
	"StartUnixMilli",
	"EndUnixMilli",
	"dBLow",
	"dBHigh",
	"dbAvg",
	"SampleCount",
}

// CSV writes one line per sample to W, or stdout if W is nil.
type CSV struct {
	W       io.Writer
	Metrics *metrics.Metrics
}

func (c *CSV) Write(ctx context.Context, samples <-chan sdr.Sample) error {
	out := c.W
	if out == nil {
		out = os.Stdout
	}
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	cnt := &counts{name: "csv", metrics: c.Metrics}

	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				w.Flush()
				return w.Error()
			}
			if err := w.Write(csvRecord(s)); err != nil {
				glog.Warningf("error while writing CSV line: %s\n", err)
				cnt.add(1, false)
				continue
			}
			w.Flush()
			if err := w.Error(); err != nil {
				glog.Warningf("error flushing CSV: %s\n", err)
				cnt.add(1, false)
				continue
			}
			cnt.add(1, true)
		}
	}
}

func csvRecord(s sdr.Sample) []string {
	return []string{
		s.Source,
		s.Identifier,
		strconv.FormatUint(s.FreqCenter, 10),
		strconv.FormatUint(s.FreqLow, 10),
		strconv.FormatUint(s.FreqHigh, 10),
		strconv.FormatInt(s.Start.UnixMilli(), 10),
		strconv.FormatInt(s.End.UnixMilli(), 10),
		strconv.FormatFloat(s.DBLow, 'f', 6, 64),
		strconv.FormatFloat(s.DBHigh, 'f', 6, 64),
		strconv.FormatFloat(s.DBAvg, 'f', 6, 64),
		strconv.FormatUint(s.SampleCount, 10),
	}
}
