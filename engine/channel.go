package engine

// ReadChannel is a lazy, finite, non-restartable sequence of chunks read from
// one source connection. Chunk boundaries are arbitrary.
type ReadChannel interface {
	// Next reads the next chunk into p and returns its length. more is false
	// once the source is exhausted; reaching the end is not an error.
	Next(p []byte) (n int, more bool, err error)

	// Close releases the source connection. It is safe to call more than
	// once and concurrently with Next, which then returns an error.
	Close() error
}
