package request

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/stream"
)

// Registry maps request ids to their tasks. Every operation is atomic per
// key; there is no ordering across keys.
type Registry struct {
	logger *zap.Logger
	tasks  sync.Map // uint32 -> *Task
	next   atomic.Uint32
}

var _ stream.Tasks = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// NextID allocates a request id. Ids increase monotonically from 1 and skip
// 0 on wrap-around.
func (r *Registry) NextID() uint32 {
	for {
		if id := r.next.Add(1); id != 0 {
			return id
		}
	}
}

// insert registers a new task. An occupied id is a broken invariant.
func (r *Registry) insert(id uint32, t *Task) {
	if _, loaded := r.tasks.LoadOrStore(id, t); loaded {
		errors.Fatal(errors.PhaseRequest, "request id %d is already registered", id)
	}
}

// promote replaces pending with streaming if pending is still registered.
func (r *Registry) promote(id uint32, pending, streaming *Task) bool {
	return r.tasks.CompareAndSwap(id, pending, streaming)
}

// finish deletes id if t is still its task.
func (r *Registry) finish(id uint32, t *Task) bool {
	return r.tasks.CompareAndDelete(id, t)
}

// Get returns the task registered for id.
func (r *Registry) Get(id uint32) (*Task, bool) {
	v, ok := r.tasks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// Body returns the cursor of a streaming request.
func (r *Registry) Body(id uint32) (*stream.Cursor, bool) {
	t, ok := r.Get(id)
	if !ok || t.kind != KindStreaming {
		return nil, false
	}
	return t.body, true
}

// Remove deletes id and releases what its task owns: a pending exchange is
// aborted and a streaming body is released.
func (r *Registry) Remove(id uint32) {
	r.remove(id)
}

func (r *Registry) remove(id uint32) (*Task, bool) {
	v, ok := r.tasks.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	t := v.(*Task)
	t.release()
	return t, true
}

// Cancel removes id, aborting the exchange if it is still in flight.
// Unknown ids are ignored.
func (r *Registry) Cancel(id uint32) bool {
	t, ok := r.remove(id)
	if !ok {
		return false
	}
	r.logger.Debug("cancelling request", zap.Uint32("request_id", id), zap.Stringer("state", t.kind))
	return true
}

// Lookup implements stream.Tasks.
func (r *Registry) Lookup(id uint32) (stream.State, *stream.Cursor) {
	t, ok := r.Get(id)
	if !ok {
		return stream.StateMissing, nil
	}
	switch t.kind {
	case KindPending:
		return stream.StatePending, nil
	case KindStreaming:
		return stream.StateStreaming, t.body
	default:
		return stream.StateOther, nil
	}
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	n := 0
	r.tasks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Count returns the number of registered requests in state k.
func (r *Registry) Count(k Kind) int {
	n := 0
	r.tasks.Range(func(_, v any) bool {
		if v.(*Task).kind == k {
			n++
		}
		return true
	})
	return n
}

// Clear removes every request.
func (r *Registry) Clear() {
	r.tasks.Range(func(k, _ any) bool {
		r.remove(k.(uint32))
		return true
	})
}
