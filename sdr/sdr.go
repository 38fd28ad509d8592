package sdr

import (
	"time"
)

const (
	// FreqOneMHz is one megahertz in Hz.
	FreqOneMHz = 1000000
	// FreqMinMHz and FreqMaxMHz bound the tunable range of the device.
	FreqMinMHz = 0
	FreqMaxMHz = 7250

	DefaultSampleRate              = 20000000 // 20 Msps
	DefaultBasebandFilterBandwidth = 15000000 // 15 MHz

	// BytesPerBlock is the size of one block within a transfer, header included.
	BytesPerBlock = 16384
	// BlocksPerTransfer is the number of blocks the device packs into one transfer.
	BlocksPerTransfer = 16
	// MaxSweepRanges is the maximum number of frequency ranges in one tuning table.
	MaxSweepRanges = 10
)

type Sample struct {
	// Metadata
	Identifier string
	Source     string

	// Radio Data
	FreqCenter  uint64
	FreqLow     uint64
	FreqHigh    uint64
	DBHigh      float64
	DBLow       float64
	DBAvg       float64
	SampleCount uint64
	Start       time.Time
	End         time.Time
}

type SDR interface {
	Name() string
	Sweep(opts *Options, samples chan<- Sample) error
}

type Options struct {
	// LowFreq is the lower frequency to start the sweeps with in Hz.
	LowFreq uint64
	// HighFreq is the upper frequency to end the sweeps with in Hz.
	HighFreq uint64

	// BinSize is the FFT bin width (frequency resolution) in Hz.
	// BinSize is a maximum, smaller more convenient bins will be used.
	BinSize uint32

	// IntegrationInterval is the duration during which to collect information per frequency.
	IntegrationInterval time.Duration
}
