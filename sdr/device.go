package sdr

// SweepStyle selects how the device steps through a tuning table.
type SweepStyle int

const (
	// Linear tunes each step once, at the step's start frequency.
	Linear SweepStyle = iota
	// Interleaved tunes each step twice, offset by a quarter of the sample
	// rate, so the DC spike and filter roll-off can be discarded.
	Interleaved
)

// Transfer is one completed bulk transfer handed over by the device.
type Transfer struct {
	Buffer      []byte
	ValidLength int
}

// TransferFunc is invoked by the device once per completed transfer.
// Returning a non-zero value asks the device to stop streaming.
type TransferFunc func(t *Transfer) int

// Device is the part of a radio the sweep engine drives.
type Device interface {
	// InitSweep programs the tuning table. frequencies holds (min, max) MHz
	// pairs, stepWidth and offset are in Hz.
	InitSweep(frequencies []uint16, bytesPerBlock, stepWidth, offset uint32, style SweepStyle) error
	// StartRxSweep starts streaming and calls fn for every transfer.
	StartRxSweep(fn TransferFunc) error
	IsStreaming() bool
}

// Radio is a Device with the front-end controls the tools configure.
type Radio interface {
	Device

	SetSampleRate(hz uint32) error
	SetBasebandFilterBandwidth(hz uint32) error
	SetLNAGain(db uint32) error
	SetVGAGain(db uint32) error
	SetAmpEnable(enable bool) error
	SetAntennaEnable(enable bool) error
	StopRx() error
	Close() error
}
