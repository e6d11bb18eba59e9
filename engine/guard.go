package engine

// CheckSize validates a declared size against limit before any transfer begins.
//
// A declared size of zero or less means the size is unknown. Unknown sizes
// are allowed through: the Streamer enforces the same limit on the bytes it
// actually reads. A limit of zero or less disables the check.
func CheckSize(declared, limit int64) error {
	if limit <= 0 || declared <= 0 {
		return nil
	}
	if declared > limit {
		return &SizeExceededError{Size: declared, Limit: limit}
	}
	return nil
}
