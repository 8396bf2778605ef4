package stream

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultChunkSize bounds a single pull from the response body.
const DefaultChunkSize = 16 << 10

// ErrReleased is returned by Next once the cursor has been released.
var ErrReleased = stderrors.New("cursor released")

// Cursor is a lazily pulled sequence of body chunks. Next blocks the caller
// until the exchange yields bytes, reaches the end or fails. The mutex keeps
// the cursor state consistent; it does not order concurrent readers, which
// the bridge protocol rules out.
type Cursor struct {
	body     io.ReadCloser
	err      error
	buf      []byte
	mu       sync.Mutex
	closed   bool
	orphaned atomic.Bool
}

// NewCursor wraps a response body.
func NewCursor(body io.ReadCloser, chunkSize int) *Cursor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Cursor{body: body, buf: make([]byte, chunkSize)}
}

// Next returns the next non-empty chunk. It returns io.EOF once the body is
// exhausted, ErrReleased after Release, and the read error otherwise.
// Cancelling ctx aborts a blocked read by closing the body.
func (c *Cursor) Next(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.unlock()

	if c.orphaned.Load() {
		c.closeLocked()
		return nil, ErrReleased
	}
	if c.err != nil {
		return nil, c.err
	}

	stop := context.AfterFunc(ctx, func() { c.body.Close() })
	defer stop()

	for {
		n, err := c.body.Read(c.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, c.buf[:n])
			if err != nil {
				c.fail(err)
			}
			if c.orphaned.Load() {
				c.closeLocked()
			}
			return chunk, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			c.fail(err)
			return nil, c.err
		}
	}
}

// unlock releases the reader lock and closes the body if Release ran while
// the lock was held.
func (c *Cursor) unlock() {
	c.mu.Unlock()
	if c.orphaned.Load() && c.mu.TryLock() {
		c.closeLocked()
		c.mu.Unlock()
	}
}

// fail records the terminal state and closes the body.
func (c *Cursor) fail(err error) {
	c.err = err
	c.closeLocked()
}

func (c *Cursor) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.body.Close()
}

// Release marks the cursor unreachable. The body is closed now if no reader
// holds the cursor, otherwise by the active reader once its chunk is done.
func (c *Cursor) Release() {
	c.orphaned.Store(true)
	if c.mu.TryLock() {
		c.closeLocked()
		c.mu.Unlock()
	}
}

// Released reports whether Release has been called.
func (c *Cursor) Released() bool {
	return c.orphaned.Load()
}
