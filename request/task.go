package request

import (
	"context"

	"github.com/wippyai/impersonate-engine/stream"
)

// Kind is the state of a registered request.
type Kind uint8

const (
	// KindPending means the exchange is in flight.
	KindPending Kind = iota
	// KindStreaming means the response was delivered and its body is readable.
	KindStreaming
	// KindContinuous is reserved for duplex connections.
	KindContinuous
)

func (k Kind) String() string {
	switch k {
	case KindPending:
		return "pending"
	case KindStreaming:
		return "streaming"
	case KindContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// Task is the immutable registry value for a request id. State changes
// replace the whole value so they can be applied with compare-and-swap.
type Task struct {
	abort context.CancelFunc
	body  *stream.Cursor
	kind  Kind
}

func pendingTask(abort context.CancelFunc) *Task {
	return &Task{kind: KindPending, abort: abort}
}

func streamingTask(body *stream.Cursor) *Task {
	return &Task{kind: KindStreaming, body: body}
}

// Kind returns the task state.
func (t *Task) Kind() Kind { return t.kind }

// Body returns the cursor of a streaming task.
func (t *Task) Body() *stream.Cursor { return t.body }

// release stops whatever the task still owns.
func (t *Task) release() {
	switch t.kind {
	case KindPending:
		if t.abort != nil {
			t.abort()
		}
	case KindStreaming:
		if t.body != nil {
			t.body.Release()
		}
	}
}
