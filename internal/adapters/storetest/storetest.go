// Package storetest holds the behavior every core.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// Factory returns a fresh, empty store. Cleanup is registered by the factory.
type Factory func(t *testing.T) core.Store

// Collector records snapshot deliveries for assertions.
type Collector struct {
	mu    sync.Mutex
	last  []domain.Message
	calls int
	ch    chan []domain.Message
}

func NewCollector() *Collector {
	return &Collector{ch: make(chan []domain.Message, 256)}
}

func (c *Collector) Fn(msgs []domain.Message) {
	c.mu.Lock()
	c.last = msgs
	c.calls++
	c.mu.Unlock()
	select {
	case c.ch <- msgs:
	default:
	}
}

func (c *Collector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// WaitFor blocks until a delivered snapshot satisfies ok.
func (c *Collector) WaitFor(t *testing.T, ok func([]domain.Message) bool) []domain.Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msgs := <-c.ch:
			if ok(msgs) {
				return msgs
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}
}

// WaitLen blocks until a snapshot of exactly n messages arrives.
func (c *Collector) WaitLen(t *testing.T, n int) []domain.Message {
	t.Helper()
	return c.WaitFor(t, func(m []domain.Message) bool { return len(m) == n })
}

// Run executes the shared backend suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("AppendAssignsOrder", func(t *testing.T) { testAppendAssignsOrder(t, newStore(t)) })
	t.Run("AppendRejectsInvalid", func(t *testing.T) { testAppendRejectsInvalid(t, newStore(t)) })
	t.Run("SubscribeDeliversSnapshots", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("RoomsAreIsolated", func(t *testing.T) { testRoomsIsolated(t, newStore(t)) })
	t.Run("ConcurrentAppendsConverge", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("CancelStopsDelivery", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("Membership", func(t *testing.T) { testMembership(t, newStore(t)) })
}

var author = domain.Member{ID: "member-1", DisplayName: "alice"}

func text(body string) domain.Message {
	return domain.NewTextMessage(author, body, false, time.Now())
}

func testAppendAssignsOrder(t *testing.T, s core.Store) {
	ctx := context.Background()
	var prev uint64
	for i := 0; i < 3; i++ {
		m, err := s.Append(ctx, "ORDER", text(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)
		assert.Greater(t, m.Seq, prev)
		prev = m.Seq
	}
}

func testAppendRejectsInvalid(t *testing.T, s core.Store) {
	_, err := s.Append(context.Background(), "BAD", domain.Message{Kind: "poll"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testSubscribe(t *testing.T, s core.Store) {
	ctx := context.Background()
	_, err := s.Append(ctx, "SUB", domain.NewSystemMessage("alice joined the room", time.Now()))
	require.NoError(t, err)

	col := NewCollector()
	sub, err := s.Subscribe(ctx, "SUB", col.Fn)
	require.NoError(t, err)
	defer sub.Cancel()

	first := col.WaitLen(t, 1)
	assert.Equal(t, domain.KindSystem, first[0].Kind)

	_, err = s.Append(ctx, "SUB", text("hello"))
	require.NoError(t, err)
	got := col.WaitLen(t, 2)
	assert.Equal(t, "alice joined the room", got[0].Text)
	assert.Equal(t, "hello", got[1].Text)
	assert.Equal(t, author.ID, got[1].SenderID)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func testRoomsIsolated(t *testing.T, s core.Store) {
	ctx := context.Background()
	col := NewCollector()
	sub, err := s.Subscribe(ctx, "EMPTY", col.Fn)
	require.NoError(t, err)
	defer sub.Cancel()
	col.WaitLen(t, 0)

	_, err = s.Append(ctx, "OTHER", text("elsewhere"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, col.Calls())
}

func testConcurrentAppends(t *testing.T, s core.Store) {
	ctx := context.Background()
	a, b := NewCollector(), NewCollector()
	subA, err := s.Subscribe(ctx, "RACE", a.Fn)
	require.NoError(t, err)
	defer subA.Cancel()
	subB, err := s.Subscribe(ctx, "RACE", b.Fn)
	require.NoError(t, err)
	defer subB.Cancel()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, "RACE", text(fmt.Sprintf("m%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	gotA := a.WaitLen(t, n)
	gotB := b.WaitLen(t, n)
	require.Len(t, gotA, n)
	for i := range gotA {
		assert.Equal(t, gotA[i].ID, gotB[i].ID, "position %d", i)
		if i > 0 {
			assert.Less(t, gotA[i-1].Seq, gotA[i].Seq)
		}
	}
}

func testDelete(t *testing.T, s core.Store) {
	ctx := context.Background()
	m1, err := s.Append(ctx, "DEL", text("one"))
	require.NoError(t, err)
	_, err = s.Append(ctx, "DEL", text("two"))
	require.NoError(t, err)

	col := NewCollector()
	sub, err := s.Subscribe(ctx, "DEL", col.Fn)
	require.NoError(t, err)
	defer sub.Cancel()
	col.WaitLen(t, 2)

	require.NoError(t, s.Delete(ctx, "DEL", m1.ID))
	got := col.WaitLen(t, 1)
	assert.Equal(t, "two", got[0].Text)

	assert.ErrorIs(t, s.Delete(ctx, "DEL", m1.ID), domain.ErrNotFound)
}

func testCancel(t *testing.T, s core.Store) {
	ctx := context.Background()
	col := NewCollector()
	sub, err := s.Subscribe(ctx, "CANCEL", col.Fn)
	require.NoError(t, err)
	col.WaitLen(t, 0)

	sub.Cancel()
	sub.Cancel()
	calls := col.Calls()

	_, err = s.Append(ctx, "CANCEL", text("after"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, col.Calls())
}

func testMembership(t *testing.T, s core.Store) {
	ctx := context.Background()
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := domain.Member{ID: "m-1", DisplayName: "alice", JoinedAt: joined}

	require.NoError(t, s.UpsertMember(ctx, "MEM", m))
	rejoined := m
	rejoined.JoinedAt = joined.Add(time.Hour)
	require.NoError(t, s.UpsertMember(ctx, "MEM", rejoined))

	members, err := s.Members(ctx, "MEM")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].DisplayName)
	assert.True(t, rejoined.JoinedAt.Equal(members[0].JoinedAt))

	require.NoError(t, s.RemoveMember(ctx, "MEM", m.ID))
	require.NoError(t, s.RemoveMember(ctx, "MEM", m.ID))
	require.NoError(t, s.RemoveMember(ctx, "NOWHERE", "ghost"))

	members, err = s.Members(ctx, "MEM")
	require.NoError(t, err)
	assert.Empty(t, members)
}
