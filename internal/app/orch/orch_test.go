package orch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/adapters/memstore"
	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/codec"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

type nopBlobs struct{}

func (nopBlobs) Upload(context.Context, domain.RoomCode, []byte, string) (string, error) {
	return "/files/x", nil
}

func newOrchestrator(t *testing.T) (*Orchestrator, *memstore.Store) {
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	dir := app.NewDirectory(store)
	return &Orchestrator{
		Registry:  NewRegistry(),
		Directory: dir,
		Policy:    app.SimplePolicy{MaxDrops: 2},
		Deps: session.Deps{
			Directory: dir,
			Messages:  store,
			Blobs:     nopBlobs{},
			Codec:     codec.Legacy{},
		},
	}, store
}

func TestConnectJoinDisconnect(t *testing.T) {
	o, store := newOrchestrator(t)
	ctx := context.Background()

	sess := o.Connect("sid-1", nil, func() {})
	got, ok := o.Session("sid-1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	require.NoError(t, o.Join(ctx, "sid-1", sess, "alice", "abc"))
	assert.Equal(t, "alice", o.Registry.NameOf("sid-1"))

	members, err := o.Members(ctx, "ABC")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	o.OnDisconnect("sid-1", sess)
	_, ok = o.Session("sid-1")
	assert.False(t, ok)
	members, err = o.Members(ctx, "ABC")
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, "alice left the room", store.Messages("ABC")[1].Text)
}

func TestJoinFallsBackToRememberedName(t *testing.T) {
	o, _ := newOrchestrator(t)
	ctx := context.Background()
	o.Registry.RememberName("sid-1", "carol")

	sess := o.Connect("sid-1", nil, func() {})
	require.NoError(t, o.Join(ctx, "sid-1", sess, "", "abc"))
	me, ok := sess.Member()
	require.True(t, ok)
	assert.Equal(t, "carol", me.DisplayName)

	other := o.Connect("sid-2", nil, func() {})
	assert.ErrorIs(t, o.Join(ctx, "sid-2", other, "", "abc"), domain.ErrInvalidInput)
}

func TestReconnectReplacesPreviousConnection(t *testing.T) {
	o, _ := newOrchestrator(t)
	canceled := false
	first := o.Connect("sid-1", nil, func() { canceled = true })
	second := o.Connect("sid-1", nil, func() {})
	assert.True(t, canceled)

	// The stale connection's teardown must not unbind its successor.
	o.OnDisconnect("sid-1", first)
	got, ok := o.Session("sid-1")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestBackPressureKicksAfterLimit(t *testing.T) {
	o, _ := newOrchestrator(t)
	kicked := 0
	o.Connect("sid-1", nil, func() { kicked++ })

	assert.Equal(t, app.DropFrame, o.OnBackPressure("sid-1", 1))
	assert.Equal(t, 0, kicked)
	assert.Equal(t, app.KickMember, o.OnBackPressure("sid-1", 2))
	assert.Equal(t, 1, kicked)
}

func TestShutdownExitsEverySession(t *testing.T) {
	o, _ := newOrchestrator(t)
	ctx := context.Background()

	for _, sid := range []string{"a", "b", "c"} {
		sess := o.Connect(core.SessionID(sid), nil, func() {})
		require.NoError(t, o.Join(ctx, core.SessionID(sid), sess, sid, "ROOM"))
	}
	require.NoError(t, o.Shutdown(ctx))

	members, err := o.Members(ctx, "ROOM")
	require.NoError(t, err)
	assert.Empty(t, members)
	for _, snap := range o.Registry.Snapshot() {
		assert.Equal(t, session.Disconnected, snap.Session.State())
	}
}
