package sweep

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// OutputMode selects how spectra are encoded.
type OutputMode int

const (
	// OutputText writes two CSV style lines per retune.
	OutputText OutputMode = iota
	// OutputBinary writes two length prefixed records per retune.
	OutputBinary
	// OutputInverse writes the reconstructed signal once per sweep.
	OutputInverse

	outputModeLast
)

func (m OutputMode) String() string {
	switch m {
	case OutputText:
		return "text"
	case OutputBinary:
		return "binary"
	case OutputInverse:
		return "inverse"
	}
	return fmt.Sprintf("OutputMode(%d)", int(m))
}

// SinkType selects where encoded output goes.
type SinkType int

const (
	// SinkDiscard drops all output, for callback only use and benchmarks.
	SinkDiscard SinkType = iota
	// SinkWriter writes to the io.Writer given to SetOutput.
	SinkWriter

	sinkTypeLast
)

const (
	textTimeFmt = "2006-01-02, 15:04:05.000000"
	// recordHeaderSize is the length prefix plus both band edges.
	recordHeaderSize = 4 + 2*8
)

// RecordLength is the value of the length prefix of a packed binary record
// for a transform of size bins: both band edges plus the quarter's powers.
func RecordLength(size int) uint32 {
	return uint32(2*8 + (size/4)*4)
}

// Record is one decoded packed binary record.
type Record struct {
	LowHz  uint64
	HighHz uint64
	Power  []float32
}

// ReadRecord decodes the next packed binary record from r. It returns
// io.EOF when r is exhausted at a record boundary.
func ReadRecord(r io.Reader) (*Record, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length < 16 || (length-16)%4 != 0 {
		return nil, fmt.Errorf("invalid record length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("truncated record: %w", err)
	}
	rec := &Record{
		LowHz:  binary.LittleEndian.Uint64(body[0:8]),
		HighHz: binary.LittleEndian.Uint64(body[8:16]),
		Power:  make([]float32, (length-16)/4),
	}
	for i := range rec.Power {
		rec.Power[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[16+4*i:]))
	}
	return rec, nil
}

// encoder formats spectra into a reusable scratch buffer so the pipeline
// does not allocate per retune once the buffer has grown.
type encoder struct {
	buf []byte
}

func (enc *encoder) writeText(w io.Writer, sp *Spectrum) error {
	if w == nil {
		return ErrSinkNotReady
	}
	b := enc.buf[:0]
	for _, band := range sp.Bands {
		b = sp.Time.AppendFormat(b, textTimeFmt)
		b = append(b, ", "...)
		b = strconv.AppendUint(b, band.LowHz, 10)
		b = append(b, ", "...)
		b = strconv.AppendUint(b, band.HighHz, 10)
		b = append(b, ", "...)
		b = strconv.AppendFloat(b, sp.BinWidth, 'f', 2, 64)
		b = append(b, ", "...)
		b = strconv.AppendInt(b, int64(sp.Size), 10)
		for _, p := range band.Power {
			b = append(b, ", "...)
			b = strconv.AppendFloat(b, float64(p), 'f', 2, 32)
		}
		b = append(b, '\n')
	}
	enc.buf = b
	_, err := w.Write(b)
	return err
}

func (enc *encoder) writeBinary(w io.Writer, sp *Spectrum) error {
	if w == nil {
		return ErrSinkNotReady
	}
	b := enc.buf[:0]
	length := RecordLength(sp.Size)
	for _, band := range sp.Bands {
		b = binary.LittleEndian.AppendUint32(b, length)
		b = binary.LittleEndian.AppendUint64(b, band.LowHz)
		b = binary.LittleEndian.AppendUint64(b, band.HighHz)
		for _, p := range band.Power {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(p))
		}
	}
	enc.buf = b
	_, err := w.Write(b)
	return err
}

// writeInverse writes samples as interleaved real and imaginary float32.
func (enc *encoder) writeInverse(w io.Writer, samples []complex128) error {
	if w == nil {
		return ErrSinkNotReady
	}
	b := enc.buf[:0]
	for _, v := range samples {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(real(v))))
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(imag(v))))
	}
	enc.buf = b
	_, err := w.Write(b)
	return err
}
