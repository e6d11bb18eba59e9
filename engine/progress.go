package engine

import (
	"hash"
)

// ProgressFunc receives the byte counters of one relay after every forwarded chunk.
// It runs on the relay's pump goroutine and must not block.
type ProgressFunc func(bytesRead, bytesWritten int64)

// TransferProgress counts the bytes of a single in-flight relay.
// It is owned by one Stream call and is never shared.
type TransferProgress struct {
	BytesRead    int64
	BytesWritten int64

	hash   hash.Hash64
	notify ProgressFunc
}

func newTransferProgress(notify ProgressFunc) *TransferProgress {
	return &TransferProgress{
		hash:   newChecksum(),
		notify: notify,
	}
}

func (p *TransferProgress) addRead(n int) int64 {
	p.BytesRead += int64(n)
	return p.BytesRead
}

func (p *TransferProgress) addWritten(chunk []byte) {
	p.BytesWritten += int64(len(chunk))
	p.hash.Write(chunk)
	if p.notify != nil {
		p.notify(p.BytesRead, p.BytesWritten)
	}
}

// Checksum returns the CRC64 of the bytes forwarded so far.
func (p *TransferProgress) Checksum() uint64 {
	return p.hash.Sum64()
}
