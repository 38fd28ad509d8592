package main

import (
	"context"

	"github.com/hb9tf/sweeper/metrics"
)

const defaultRingSize = 4096

// ring is a bounded queue between the sweep callback and the publishing
// goroutine. Push never blocks: when the consumer falls behind, new
// messages are dropped and counted.
type ring struct {
	ch      chan []byte
	metrics *metrics.Metrics
}

func newRing(size int, m *metrics.Metrics) *ring {
	if size <= 0 {
		size = defaultRingSize
	}
	return &ring{ch: make(chan []byte, size), metrics: m}
}

// Push enqueues msg and reports whether there was room for it.
func (r *ring) Push(msg []byte) bool {
	select {
	case r.ch <- msg:
		r.metrics.SetRingOccupied(len(r.ch))
		return true
	default:
		r.metrics.RingDropped()
		return false
	}
}

// Pop waits for the next message. ok is false once ctx is done and the
// queue is drained.
func (r *ring) Pop(ctx context.Context) (msg []byte, ok bool) {
	select {
	case msg = <-r.ch:
		r.metrics.SetRingOccupied(len(r.ch))
		return msg, true
	case <-ctx.Done():
	}
	select {
	case msg = <-r.ch:
		return msg, true
	default:
		return nil, false
	}
}

func (r *ring) Len() int { return len(r.ch) }
