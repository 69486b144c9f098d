package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// Directory records which members are in which room. Rooms exist implicitly
// from their first join and are never removed.
type Directory struct {
	store core.MembershipStore
	now   func() time.Time
}

func NewDirectory(store core.MembershipStore) *Directory {
	return &Directory{store: store, now: time.Now}
}

// Join registers the member under code. Repeating it overwrites the join time.
func (d *Directory) Join(ctx context.Context, code domain.RoomCode, id domain.MemberID, displayName string) error {
	member := domain.Member{ID: id, DisplayName: displayName, JoinedAt: d.now()}
	if err := d.store.UpsertMember(ctx, code, member); err != nil {
		return fmt.Errorf("%w: register member: %w", domain.ErrStoreUnavailable, err)
	}
	log.Info().Str("module", "app.directory").Str("room", code.String()).Str("member", string(id)).Msg("member registered")
	return nil
}

// Leave removes the member. Leaving a room one is not in is not an error.
func (d *Directory) Leave(ctx context.Context, code domain.RoomCode, id domain.MemberID) error {
	if err := d.store.RemoveMember(ctx, code, id); err != nil {
		return fmt.Errorf("%w: remove member: %w", domain.ErrStoreUnavailable, err)
	}
	log.Info().Str("module", "app.directory").Str("room", code.String()).Str("member", string(id)).Msg("member removed")
	return nil
}

func (d *Directory) Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error) {
	members, err := d.store.Members(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %w", domain.ErrStoreUnavailable, err)
	}
	return members, nil
}
