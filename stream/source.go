package stream

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
)

// Source reads a streaming response body through a Bridge. It is the Go-side
// counterpart of a host stream instance.
type Source struct {
	ctx     context.Context
	bridge  *Bridge
	pending bytes.Buffer
	id      atomic.Uint32
}

var (
	_ io.ReadCloser = (*Source)(nil)
	_ io.WriterTo   = (*Source)(nil)
	_ Binding       = (*Source)(nil)
)

// Open binds a Source to a streaming request.
func (b *Bridge) Open(ctx context.Context, id uint32) (*Source, error) {
	s := &Source{ctx: ctx, bridge: b}
	s.id.Store(id)
	if err := b.Init(s); err != nil {
		return nil, err
	}
	return s, nil
}

// RequestID implements Binding.
func (s *Source) RequestID() (uint32, error) {
	return s.id.Load(), nil
}

// ClearRequestID implements Binding.
func (s *Source) ClearRequestID() error {
	s.id.Store(0)
	return nil
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.pending.Len() == 0 {
		n, err := s.bridge.ReadAtMostTo(s.ctx, s, &s.pending, 1)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, io.EOF
		}
	}
	return s.pending.Read(p)
}

// WriteTo implements io.WriterTo, copying the rest of the body to w.
func (s *Source) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if s.pending.Len() > 0 {
		n, err := s.pending.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	for {
		n, err := s.bridge.ReadAtMostTo(s.ctx, s, w, 1)
		if err != nil {
			return total, err
		}
		if n < 0 {
			return total, nil
		}
		total += n
	}
}

// Close releases the request. It is safe to call more than once.
func (s *Source) Close() error {
	return s.bridge.Close(s)
}
