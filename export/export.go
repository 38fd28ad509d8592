package export

import (
	"context"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
)

const sampleCountInfo = 1000

type Exporter interface {
	Write(context.Context, <-chan sdr.Sample) error
}

// counts tracks the outcome of every sample an exporter handles and logs a
// summary every sampleCountInfo samples.
type counts struct {
	name    string
	metrics *metrics.Metrics

	Error   int
	Success int
	Total   int
}

func (c *counts) add(n int, ok bool) {
	for i := 0; i < n; i++ {
		c.Total++
		if ok {
			c.Success++
		} else {
			c.Error++
		}
		c.metrics.Exported(c.name, ok)
		if c.Total%sampleCountInfo == 0 {
			glog.Infof("%s sample export counts: %+v\n", c.name, *c)
		}
	}
}
