package engine

import (
	"hash"
	"hash/crc64"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// Checksum returns the CRC64 (ISO) of data. It matches Transfer.Checksum for
// a relay that forwarded exactly data.
func Checksum(data []byte) uint64 {
	return crc64.Checksum(data, crcTable)
}

func newChecksum() hash.Hash64 {
	return crc64.New(crcTable)
}
