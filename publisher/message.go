package main

import (
	"encoding/json"

	"github.com/hb9tf/sweeper/sweep"
)

// Message is the payload published for every retune: two quarter bands of
// the same transform, as seen at one transfer time.
type Message struct {
	Sec      int64     `json:"sec"`
	Usec     int64     `json:"usec"`
	BinWidth float64   `json:"binwidth"`
	FFTSize  int       `json:"fftsize"`
	Start    uint64    `json:"start"`
	End      uint64    `json:"end"`
	Power    []float32 `json:"pwr"`
	Start2   uint64    `json:"start2"`
	End2     uint64    `json:"end2"`
	Power2   []float32 `json:"pwr2"`
}

// newMessage copies sp, which the sweep engine reuses after the callback.
func newMessage(sp *sweep.Spectrum) Message {
	return Message{
		Sec:      sp.Time.Unix(),
		Usec:     int64(sp.Time.Nanosecond() / 1000),
		BinWidth: sp.BinWidth,
		FFTSize:  sp.Size,
		Start:    sp.Bands[0].LowHz,
		End:      sp.Bands[0].HighHz,
		Power:    append([]float32(nil), sp.Bands[0].Power...),
		Start2:   sp.Bands[1].LowHz,
		End2:     sp.Bands[1].HighHz,
		Power2:   append([]float32(nil), sp.Bands[1].Power...),
	}
}

func encodeMessage(sp *sweep.Spectrum) ([]byte, error) {
	return json.Marshal(newMessage(sp))
}
