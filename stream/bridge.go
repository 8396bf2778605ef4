package stream

import (
	"context"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/errors"
)

// State is the registry state of a request as seen by the bridge.
type State uint8

const (
	StateMissing State = iota
	StatePending
	StateStreaming
	StateOther
)

// Tasks is the view of the request registry the bridge needs.
type Tasks interface {
	// Lookup returns the state of id and, when streaming, its cursor.
	Lookup(id uint32) (State, *Cursor)

	// Remove deletes id, releasing its cursor.
	Remove(id uint32)
}

// Binding is a stream instance bound to a request id. Zero means closed.
type Binding interface {
	RequestID() (uint32, error)
	ClearRequestID() error
}

// Bridge serves blocking reads of response bodies to callers that cannot
// suspend.
type Bridge struct {
	tasks   Tasks
	logger  *zap.Logger
	onBytes func(int64)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithByteCounter registers a callback for bytes delivered to sinks.
func WithByteCounter(fn func(int64)) Option {
	return func(b *Bridge) { b.onBytes = fn }
}

// NewBridge creates a bridge over tasks.
func NewBridge(tasks Tasks, opts ...Option) *Bridge {
	b := &Bridge{
		tasks:   tasks,
		logger:  zap.NewNop(),
		onBytes: func(int64) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init checks that the bound request has a body to stream.
func (b *Bridge) Init(bind Binding) error {
	id, err := bind.RequestID()
	if err != nil {
		return err
	}
	if id == 0 {
		return nil
	}

	switch state, _ := b.tasks.Lookup(id); state {
	case StateStreaming:
		return nil
	case StateMissing, StatePending:
		return errors.NoBody(id)
	default:
		return errors.WrongType(errors.PhaseStream, "target request id is of wrong task type")
	}
}

// Close removes the bound request and clears the binding. Closing an
// already closed binding does nothing.
func (b *Bridge) Close(bind Binding) error {
	id, err := bind.RequestID()
	if err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	b.tasks.Remove(id)
	return bind.ClearRequestID()
}

// ReadAtMostTo writes chunks to sink until at least minBytes were written in
// this call or the body ends, pulling at least one chunk. It returns -1 when
// the binding is closed or the body ended before any byte was written. The
// binding is closed when the body ends.
func (b *Bridge) ReadAtMostTo(ctx context.Context, bind Binding, sink io.Writer, minBytes int64) (int64, error) {
	id, err := bind.RequestID()
	if err != nil {
		return -1, err
	}
	if id == 0 {
		return -1, nil
	}

	state, cur := b.tasks.Lookup(id)
	switch state {
	case StateMissing:
		return -1, nil
	case StateStreaming:
	default:
		return -1, errors.NoBody(id)
	}

	var total int64
	for {
		chunk, err := cur.Next(ctx)
		switch {
		case err == io.EOF:
			if cerr := b.Close(bind); cerr != nil {
				return -1, cerr
			}
			return endOf(total), nil
		case stderrors.Is(err, ErrReleased):
			// cancelled while bound
			return endOf(total), bind.ClearRequestID()
		case err != nil:
			b.logger.Debug("response chunk failed", zap.Uint32("request_id", id), zap.Error(err))
			b.tasks.Remove(id)
			if cerr := bind.ClearRequestID(); cerr != nil {
				b.logger.Debug("failed to clear binding", zap.Uint32("request_id", id), zap.Error(cerr))
			}
			return -1, errors.Wrap(errors.PhaseStream, errors.KindIO, err, "failed to read response chunk")
		}

		n, werr := sink.Write(chunk)
		total += int64(n)
		b.onBytes(int64(n))
		if werr != nil {
			return -1, errors.Wrap(errors.PhaseStream, errors.KindIO, werr, "failed to write to sink")
		}

		if total >= minBytes {
			return total, nil
		}
	}
}

func endOf(total int64) int64 {
	if total == 0 {
		return -1
	}
	return total
}
