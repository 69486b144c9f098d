package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/adapters/memstore"
	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/orch"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/codec"
)

// fakeWS never completes a read and records writes.
type fakeWS struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
	block  chan struct{}
}

func newFakeWS() *fakeWS { return &fakeWS{block: make(chan struct{})} }

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	<-f.block
	return 0, nil, context.Canceled
}

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.block)
	}
	return nil
}

func (f *fakeWS) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestTrySendBackpressureAndClose(t *testing.T) {
	conn := newWsSignalConn(newFakeWS())
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, conn.TrySend([]byte("x")))
	}
	assert.ErrorIs(t, conn.TrySend([]byte("x")), ErrBackpressure)

	conn.Close()
	conn.Close()
	assert.ErrorIs(t, conn.TrySend([]byte("x")), ErrConnClosed)
}

func TestSlowClientIsKicked(t *testing.T) {
	store := memstore.New()
	defer store.Close()
	dir := app.NewDirectory(store)
	o := &orch.Orchestrator{
		Registry:  orch.NewRegistry(),
		Directory: dir,
		Policy:    app.SimplePolicy{MaxDrops: 3},
		Deps:      session.Deps{Directory: dir, Messages: store, Blobs: nopBlobs{}, Codec: codec.Legacy{}},
	}
	ctl := NewSignalWSController(o, nil, 0, 0)

	ws := newFakeWS()
	conn := newWsSignalConn(ws)
	kicked := make(chan struct{})
	o.Connect("sid-1", nil, func() { close(kicked) })

	// No write pump runs, so the buffer fills and stays full.
	for i := 0; i < sendBuffer; i++ {
		ctl.handlePing("sid-1", conn)
	}
	ctl.handlePing("sid-1", conn)
	ctl.handlePing("sid-1", conn)
	assert.False(t, ws.isClosed())

	ctl.handlePing("sid-1", conn)
	select {
	case <-kicked:
	case <-time.After(time.Second):
		t.Fatal("slow client was not kicked")
	}
	assert.True(t, ws.isClosed())
}

func TestWritePumpDrainsQueue(t *testing.T) {
	ctl := &SignalWSController{}
	ws := newFakeWS()
	conn := newWsSignalConn(ws)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, conn.TrySend([]byte(`{"type":"pong"}`)))
	go ctl.writePump(ctx, conn)

	assert.Eventually(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return len(ws.writes) == 1
	}, time.Second, 10*time.Millisecond)
}
