package sweep

import "time"

// Band is one usable quarter of a retune's spectrum.
type Band struct {
	LowHz  uint64
	HighHz uint64
	Power  []float32
}

// Spectrum is the result of analyzing one block. The pipeline reuses the
// same Spectrum and its slices for every retune, so callbacks must copy
// whatever they keep.
type Spectrum struct {
	Time      time.Time
	Frequency uint64
	BinWidth  float64
	Size      int
	Bands     [2]Band
}

// fill points sp at the engine's current power array for a block tuned to
// freq.
func (sp *Spectrum) fill(e *engine, freq uint64, sampleRate uint32, ts time.Time) {
	rate := uint64(sampleRate)
	sp.Time = ts
	sp.Frequency = freq
	sp.BinWidth = e.binWidth
	sp.Size = e.size
	sp.Bands[0] = Band{LowHz: freq, HighHz: freq + rate/4, Power: e.lowBand()}
	sp.Bands[1] = Band{LowHz: freq + rate/2, HighHz: freq + (rate*3)/4, Power: e.highBand()}
}
