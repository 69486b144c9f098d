package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/dkeye/roomchat/internal/adapters/storetest"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// Requires PostgreSQL; set TEST_DATABASE_URL to run.
func setupTestStore(t *testing.T) core.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping test: TEST_DATABASE_URL not set")
	}
	s, err := New(context.Background(), url)
	if err != nil {
		t.Skipf("Skipping test: database not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &roomScoped{Store: s, suffix: "-" + uuid.NewString()[:8]}
}

// roomScoped gives every test run private room codes in a shared database.
type roomScoped struct {
	*Store
	suffix string
}

func (r *roomScoped) code(c domain.RoomCode) domain.RoomCode {
	return c + domain.RoomCode(r.suffix)
}

func (r *roomScoped) Append(ctx context.Context, c domain.RoomCode, m domain.Message) (domain.Message, error) {
	return r.Store.Append(ctx, r.code(c), m)
}

func (r *roomScoped) Subscribe(ctx context.Context, c domain.RoomCode, fn core.SnapshotFunc) (core.Subscription, error) {
	return r.Store.Subscribe(ctx, r.code(c), fn)
}

func (r *roomScoped) Delete(ctx context.Context, c domain.RoomCode, id domain.MessageID) error {
	return r.Store.Delete(ctx, r.code(c), id)
}

func (r *roomScoped) UpsertMember(ctx context.Context, c domain.RoomCode, m domain.Member) error {
	return r.Store.UpsertMember(ctx, r.code(c), m)
}

func (r *roomScoped) RemoveMember(ctx context.Context, c domain.RoomCode, id domain.MemberID) error {
	return r.Store.RemoveMember(ctx, r.code(c), id)
}

func (r *roomScoped) Members(ctx context.Context, c domain.RoomCode) ([]domain.Member, error) {
	return r.Store.Members(ctx, r.code(c))
}

func TestStore(t *testing.T) {
	storetest.Run(t, setupTestStore)
}
