package hackrf

import (
	"fmt"
	"strconv"
	"strings"
)

const defaultToneAmplitude = 0.5

// ParseTones reads a comma separated list of freqHz[:amplitude] entries,
// e.g. "2403500000:0.8,2450000000".
func ParseTones(s string) ([]Tone, error) {
	var tones []Tone
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		freq, amp, hasAmp := strings.Cut(part, ":")
		hz, err := strconv.ParseFloat(freq, 64)
		if err != nil || hz <= 0 {
			return nil, fmt.Errorf("invalid tone frequency %q", freq)
		}
		t := Tone{FreqHz: uint64(hz), Amplitude: defaultToneAmplitude}
		if hasAmp {
			a, err := strconv.ParseFloat(amp, 64)
			if err != nil || a < 0 || a > 1 {
				return nil, fmt.Errorf("invalid tone amplitude %q, want 0 to 1", amp)
			}
			t.Amplitude = a
		}
		tones = append(tones, t)
	}
	return tones, nil
}
