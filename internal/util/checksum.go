package util

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumSize is the length of the trailer written by AppendChecksum.
const ChecksumSize = 4

var (
	// Castagnoli polynomial for CRC32C
	crc32cTable = crc32.MakeTable(crc32.Castagnoli)
)

// Checksum computes CRC32C checksum of data
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// AppendChecksum returns data followed by its little-endian CRC32C.
func AppendChecksum(data []byte) []byte {
	result := make([]byte, len(data)+ChecksumSize)
	copy(result, data)
	binary.LittleEndian.PutUint32(result[len(data):], Checksum(data))
	return result
}

// SplitChecksum strips and verifies the trailer added by AppendChecksum.
// ok is false when the buffer is too short or the checksum does not match.
func SplitChecksum(buf []byte) (data []byte, ok bool) {
	if len(buf) < ChecksumSize {
		return nil, false
	}
	n := len(buf) - ChecksumSize
	data = buf[:n]
	if Checksum(data) != binary.LittleEndian.Uint32(buf[n:]) {
		return nil, false
	}
	return data, true
}
