package stream

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/impersonate-engine/errors"
)

// chunkBody yields one chunk per Read.
type chunkBody struct {
	chunks []string
	err    error
	closed int
	mu     sync.Mutex
}

func (b *chunkBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *chunkBody) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// blockingBody blocks reads until closed.
type blockingBody struct {
	done chan struct{}
	once sync.Once
}

func newBlockingBody() *blockingBody { return &blockingBody{done: make(chan struct{})} }

func (b *blockingBody) Read([]byte) (int, error) {
	<-b.done
	return 0, stderrors.New("read on closed body")
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

type fakeTasks struct {
	states  map[uint32]State
	cursors map[uint32]*Cursor
	removed []uint32
	mu      sync.Mutex
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{states: map[uint32]State{}, cursors: map[uint32]*Cursor{}}
}

func (f *fakeTasks) Lookup(id uint32) (State, *Cursor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[id]
	if !ok {
		return StateMissing, nil
	}
	return s, f.cursors[id]
}

func (f *fakeTasks) Remove(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cursors[id]; ok {
		c.Release()
	}
	delete(f.states, id)
	delete(f.cursors, id)
	f.removed = append(f.removed, id)
}

func (f *fakeTasks) streaming(id uint32, body io.ReadCloser) *Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := NewCursor(body, 0)
	f.states[id] = StateStreaming
	f.cursors[id] = c
	return c
}

func (f *fakeTasks) has(id uint32) bool {
	s, _ := f.Lookup(id)
	return s != StateMissing
}

type binding struct{ id uint32 }

func (b *binding) RequestID() (uint32, error) { return b.id, nil }
func (b *binding) ClearRequestID() error      { b.id = 0; return nil }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, stderrors.New("sink closed") }

func TestCursor_Chunks(t *testing.T) {
	body := &chunkBody{chunks: []string{"hello ", "world"}}
	c := NewCursor(body, 0)
	ctx := context.Background()

	chunk, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello ", string(chunk))

	chunk, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "world", string(chunk))

	_, err = c.Next(ctx)
	assert.Equal(t, io.EOF, err)
	_, err = c.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, body.Closed())
}

func TestCursor_SmallChunkSize(t *testing.T) {
	body := &chunkBody{chunks: []string{"abcdef"}}
	c := NewCursor(body, 4)

	chunk, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(chunk))
	chunk, err = c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ef", string(chunk))
}

func TestCursor_ReleaseIdle(t *testing.T) {
	body := &chunkBody{chunks: []string{"data"}}
	c := NewCursor(body, 0)

	c.Release()
	assert.True(t, c.Released())
	assert.Equal(t, 1, body.Closed())

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, 1, body.Closed())
}

func TestCursor_ReleaseWhileReading(t *testing.T) {
	body := &chunkBody{chunks: []string{"data", "more"}}
	c := NewCursor(body, 0)

	// a reader holds the lock past its last orphaned check
	c.mu.Lock()
	c.Release()
	assert.Equal(t, 0, body.Closed(), "body stays open while the reader holds the cursor")

	c.unlock()
	assert.Equal(t, 1, body.Closed(), "reader closes the body when it lets go")

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, 1, body.Closed())
}

func TestCursor_ReadError(t *testing.T) {
	boom := stderrors.New("connection reset")
	body := &chunkBody{chunks: []string{"a"}, err: boom}
	c := NewCursor(body, 0)

	_, err := c.Next(context.Background())
	require.NoError(t, err)
	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, body.Closed())
}

func TestCursor_ContextCancelUnblocks(t *testing.T) {
	c := NewCursor(newBlockingBody(), 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestBridge_Init(t *testing.T) {
	tasks := newFakeTasks()
	tasks.states[2] = StatePending
	tasks.states[3] = StateOther
	tasks.streaming(4, &chunkBody{})
	b := NewBridge(tasks)

	tests := []struct {
		name string
		id   uint32
		kind errors.Kind
	}{
		{"closed instance", 0, ""},
		{"missing entry", 1, errors.KindNoBody},
		{"pending entry", 2, errors.KindNoBody},
		{"wrong task type", 3, errors.KindWrongType},
		{"streaming", 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Init(&binding{id: tt.id})
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, errors.SignalArgument, e.Signal())
		})
	}
}

func TestBridge_ReadAtMostTo_Sequence(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(9, &chunkBody{chunks: []string{"hello ", "world"}})
	b := NewBridge(tasks)
	bind := &binding{id: 9}
	var sink bytes.Buffer
	ctx := context.Background()

	n, err := b.ReadAtMostTo(ctx, bind, &sink, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	n, err = b.ReadAtMostTo(ctx, bind, &sink, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = b.ReadAtMostTo(ctx, bind, &sink, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	assert.Equal(t, "hello world", sink.String())
	assert.False(t, tasks.has(9))
	assert.Zero(t, bind.id)

	n, err = b.ReadAtMostTo(ctx, bind, &sink, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)
}

func TestBridge_ReadAtMostTo_MinBytes(t *testing.T) {
	t.Run("zero returns after one chunk", func(t *testing.T) {
		tasks := newFakeTasks()
		tasks.streaming(1, &chunkBody{chunks: []string{"abc", "def"}})
		b := NewBridge(tasks)

		var sink bytes.Buffer
		n, err := b.ReadAtMostTo(context.Background(), &binding{id: 1}, &sink, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("zero on exhausted source", func(t *testing.T) {
		tasks := newFakeTasks()
		tasks.streaming(1, &chunkBody{})
		b := NewBridge(tasks)
		bind := &binding{id: 1}

		n, err := b.ReadAtMostTo(context.Background(), bind, io.Discard, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), n)
		assert.Zero(t, bind.id)
	})

	t.Run("accumulates across chunks", func(t *testing.T) {
		tasks := newFakeTasks()
		tasks.streaming(1, &chunkBody{chunks: []string{"ab", "cd", "ef"}})
		b := NewBridge(tasks)

		var sink bytes.Buffer
		n, err := b.ReadAtMostTo(context.Background(), &binding{id: 1}, &sink, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.Equal(t, "abcd", sink.String())
	})

	t.Run("end before min returns partial total", func(t *testing.T) {
		tasks := newFakeTasks()
		tasks.streaming(1, &chunkBody{chunks: []string{"ab"}})
		b := NewBridge(tasks)
		bind := &binding{id: 1}

		n, err := b.ReadAtMostTo(context.Background(), bind, io.Discard, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Zero(t, bind.id)
		assert.False(t, tasks.has(1))
	})
}

func TestBridge_ReadAtMostTo_States(t *testing.T) {
	tasks := newFakeTasks()
	tasks.states[2] = StatePending
	b := NewBridge(tasks)

	n, err := b.ReadAtMostTo(context.Background(), &binding{}, io.Discard, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	n, err = b.ReadAtMostTo(context.Background(), &binding{id: 1}, io.Discard, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	_, err = b.ReadAtMostTo(context.Background(), &binding{id: 2}, io.Discard, 1)
	require.Error(t, err)
	assert.Equal(t, errors.SignalArgument, errors.SignalOf(err))
}

func TestBridge_ReadAtMostTo_ChunkError(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(5, &chunkBody{err: stderrors.New("connection reset")})
	b := NewBridge(tasks)
	bind := &binding{id: 5}

	n, err := b.ReadAtMostTo(context.Background(), bind, io.Discard, 1)
	require.Error(t, err)
	assert.Equal(t, int64(-1), n)
	assert.Equal(t, errors.SignalRuntime, errors.SignalOf(err))
	assert.Contains(t, err.Error(), "failed to read response chunk")
	assert.False(t, tasks.has(5))
	assert.Zero(t, bind.id)
}

func TestBridge_ReadAtMostTo_SinkError(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(5, &chunkBody{chunks: []string{"x"}})
	b := NewBridge(tasks)

	_, err := b.ReadAtMostTo(context.Background(), &binding{id: 5}, failingWriter{}, 1)
	require.Error(t, err)
	assert.Equal(t, errors.SignalRuntime, errors.SignalOf(err))
}

func TestBridge_ReadAfterCancel(t *testing.T) {
	tasks := newFakeTasks()
	body := &chunkBody{chunks: []string{"x"}}
	cur := tasks.streaming(5, body)
	b := NewBridge(tasks)
	bind := &binding{id: 5}

	tasks.Remove(5)
	assert.True(t, cur.Released())
	assert.Equal(t, 1, body.Closed())

	n, err := b.ReadAtMostTo(context.Background(), bind, io.Discard, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)
}

func TestBridge_CloseIdempotent(t *testing.T) {
	tasks := newFakeTasks()
	body := &chunkBody{chunks: []string{"x"}}
	tasks.streaming(5, body)
	b := NewBridge(tasks)
	bind := &binding{id: 5}

	require.NoError(t, b.Close(bind))
	require.NoError(t, b.Close(bind))
	assert.Zero(t, bind.id)
	assert.Equal(t, []uint32{5}, tasks.removed)
	assert.Equal(t, 1, body.Closed())
}

func TestBridge_ByteCounter(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(1, &chunkBody{chunks: []string{"abc", "de"}})
	var counted int64
	b := NewBridge(tasks, WithByteCounter(func(n int64) { counted += n }))

	_, err := io.Copy(io.Discard, mustOpen(t, b, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(5), counted)
}

func mustOpen(t *testing.T, b *Bridge, id uint32) *Source {
	t.Helper()
	s, err := b.Open(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestSource_ReadAll(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(3, &chunkBody{chunks: []string{"hello ", "world"}})
	b := NewBridge(tasks)

	s := mustOpen(t, b, 3)
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.False(t, tasks.has(3))
	require.NoError(t, s.Close())
}

func TestSource_SmallReads(t *testing.T) {
	tasks := newFakeTasks()
	tasks.streaming(3, &chunkBody{chunks: []string{"hello"}})
	b := NewBridge(tasks)
	s := mustOpen(t, b, 3)

	p := make([]byte, 2)
	var got []byte
	for {
		n, err := s.Read(p)
		got = append(got, p[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "hello", string(got))
}

func TestSource_OpenErrors(t *testing.T) {
	tasks := newFakeTasks()
	tasks.states[2] = StatePending
	b := NewBridge(tasks)

	_, err := b.Open(context.Background(), 2)
	assert.Error(t, err)
	_, err = b.Open(context.Background(), 77)
	assert.Error(t, err)
}

func TestSource_CloseEarly(t *testing.T) {
	tasks := newFakeTasks()
	body := &chunkBody{chunks: []string{"a", "b"}}
	tasks.streaming(3, body)
	b := NewBridge(tasks)
	s := mustOpen(t, b, 3)

	require.NoError(t, s.Close())
	assert.False(t, tasks.has(3))
	assert.Equal(t, 1, body.Closed())

	n, err := s.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}
