package provider

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrReadTimeout is returned by ChunkChannel.Next when a single read took
// longer than the channel's read timeout.
var ErrReadTimeout = errors.New("source read timed out")

var errChannelClosed = errors.New("source channel closed")

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// ChunkChannel adapts a source stream to engine.ReadChannel.
//
// Data returned together with an error is delivered first; the error is
// reported by the following call. io.EOF ends the channel without an error.
type ChunkChannel struct {
	rc          io.ReadCloser
	readTimeout time.Duration
	timer       *time.Timer
	timedOut    atomic.Bool

	pending error
	eof     bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	release   func()
}

// NewChunkChannel wraps rc. A positive readTimeout closes rc when a single
// read blocks for longer than that.
func NewChunkChannel(rc io.ReadCloser, readTimeout time.Duration) *ChunkChannel {
	c := &ChunkChannel{rc: rc, readTimeout: readTimeout}
	if readTimeout > 0 {
		c.timer = time.AfterFunc(readTimeout, c.expire)
		c.timer.Stop()
	}
	return c
}

// OnClose registers fn to run once when the channel is closed.
func (c *ChunkChannel) OnClose(fn func()) *ChunkChannel {
	c.release = fn
	return c
}

// Next reads the next chunk into p.
func (c *ChunkChannel) Next(p []byte) (int, bool, error) {
	if c.eof {
		return 0, false, nil
	}
	if c.pending != nil {
		err := c.pending
		c.pending = nil
		return c.finish(err)
	}
	if c.closed.Load() {
		return 0, false, c.closedErr()
	}

	for range maxEmptyReads {
		n, err := c.read(p)
		if n > 0 {
			c.pending = err
			return n, true, nil
		}
		if err != nil {
			return c.finish(err)
		}
	}
	return c.finish(io.ErrNoProgress)
}

func (c *ChunkChannel) read(p []byte) (int, error) {
	if c.timer == nil {
		return c.rc.Read(p)
	}
	c.timer.Reset(c.readTimeout)
	n, err := c.rc.Read(p)
	c.timer.Stop()
	if c.timedOut.Load() {
		return n, c.closedErr()
	}
	return n, err
}

func (c *ChunkChannel) finish(err error) (int, bool, error) {
	if errors.Is(err, io.EOF) {
		c.eof = true
		return 0, false, nil
	}
	if c.closed.Load() {
		return 0, false, c.closedErr()
	}
	return 0, false, err
}

func (c *ChunkChannel) closedErr() error {
	if c.timedOut.Load() {
		return fmt.Errorf("%w: no data for %s", ErrReadTimeout, c.readTimeout)
	}
	return errChannelClosed
}

func (c *ChunkChannel) expire() {
	c.timedOut.Store(true)
	_ = c.Close()
}

// Close releases the underlying stream. It may be called concurrently with
// Next and more than once.
func (c *ChunkChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.timer != nil {
			c.timer.Stop()
		}
		c.closeErr = c.rc.Close()
		if c.release != nil {
			c.release()
		}
	})
	return c.closeErr
}
