package sdr

import "encoding/binary"

const (
	// BlockHeaderSize is the two magic bytes plus the tuned frequency.
	BlockHeaderSize = 10

	blockMagic = 0x7F
)

// PutBlockHeader writes the magic bytes and the little-endian tuned
// frequency (Hz) to the start of block.
func PutBlockHeader(block []byte, freq uint64) {
	block[0] = blockMagic
	block[1] = blockMagic
	binary.LittleEndian.PutUint64(block[2:BlockHeaderSize], freq)
}

// ParseBlockHeader returns the tuned frequency of block in Hz. ok is false
// when the block is too short or does not start with the magic bytes.
func ParseBlockHeader(block []byte) (freq uint64, ok bool) {
	if len(block) < BlockHeaderSize || block[0] != blockMagic || block[1] != blockMagic {
		return 0, false
	}
	return binary.LittleEndian.Uint64(block[2:BlockHeaderSize]), true
}
