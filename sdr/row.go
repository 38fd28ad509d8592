package sdr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	rowTimeFmt    = "2006-01-02T15:04:05"
	rowHeaderCols = 6
)

func parseUint(num string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(strings.Split(num, ".")[0]), 10, 64)
}

// BinRange calculates the highest and lowest frequencies in a bin.
func BinRange(freqLow, freqHigh, binWidth, binNum uint64) (uint64, uint64) {
	low := freqLow + (binNum * binWidth)
	high := low + binWidth
	if high > freqHigh {
		high = freqHigh
	}
	return low, high
}

// ParseRow splits one line of text sweep output
// (date, time, hz_low, hz_high, hz_bin_width, num_samples, dB, dB, ...)
// into one Sample per bin. Timestamps are read in local time, which is how
// the text encoder writes them.
func ParseRow(line, identifier, source string) ([]Sample, error) {
	row := strings.Split(strings.TrimSpace(line), ", ")
	if len(row) <= rowHeaderCols {
		return nil, fmt.Errorf("row has %d columns, want more than %d", len(row), rowHeaderCols)
	}
	numBins := len(row) - rowHeaderCols

	parsedTime, err := time.ParseInLocation(rowTimeFmt, row[0]+"T"+row[1], time.Local)
	if err != nil {
		return nil, err
	}
	freqLow, err := parseUint(row[2])
	if err != nil {
		return nil, err
	}
	freqHigh, err := parseUint(row[3])
	if err != nil {
		return nil, err
	}
	binWidth, err := parseUint(row[4])
	if err != nil {
		return nil, err
	}
	sampleCount, err := parseUint(row[5])
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, numBins)
	for i := 0; i < numBins; i++ {
		decibels, err := strconv.ParseFloat(strings.TrimSpace(row[i+rowHeaderCols]), 64)
		if err != nil {
			return nil, err
		}
		low, high := BinRange(freqLow, freqHigh, binWidth, uint64(i))
		samples = append(samples, Sample{
			Identifier:  identifier,
			Source:      source,
			FreqCenter:  (low + high) / 2,
			FreqLow:     low,
			FreqHigh:    high,
			DBLow:       decibels,
			DBHigh:      decibels,
			DBAvg:       decibels,
			SampleCount: sampleCount,
			Start:       parsedTime,
			End:         parsedTime,
		})
	}
	return samples, nil
}
