// Package core declares the ports the chat core consumes. Adapters own the
// implementations; the core never touches transport or storage resources.
package core

import (
	"context"

	"github.com/dkeye/roomchat/internal/domain"
)

// SessionID identifies one client connection (the client token cookie).
type SessionID string

// SnapshotFunc receives the complete ordered message sequence of a room each
// time it changes. It replaces, rather than extends, the previous delivery.
type SnapshotFunc func(messages []domain.Message)

// Subscription is a live feed of room snapshots. Cancel is synchronous and
// idempotent: once it returns no further snapshot is delivered, and calling
// it again is harmless. Cancel must not be called from inside the SnapshotFunc.
type Subscription interface {
	Cancel()
}

// MessageStore is an append-only, totally ordered log per room with push
// delivery. The store, not the client, assigns ID and Seq.
type MessageStore interface {
	Append(ctx context.Context, code domain.RoomCode, msg domain.Message) (domain.Message, error)
	// Subscribe delivers the current sequence once, then again on every change.
	Subscribe(ctx context.Context, code domain.RoomCode, fn SnapshotFunc) (Subscription, error)
	// Delete removes one message; unknown ids return domain.ErrNotFound.
	Delete(ctx context.Context, code domain.RoomCode, id domain.MessageID) error
}

// MembershipStore holds the member set of each room. Upsert and Remove are
// idempotent.
type MembershipStore interface {
	UpsertMember(ctx context.Context, code domain.RoomCode, member domain.Member) error
	RemoveMember(ctx context.Context, code domain.RoomCode, id domain.MemberID) error
	Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error)
}

// Store is a backend that serves both messages and membership.
type Store interface {
	MessageStore
	MembershipStore
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore keeps file attachments and hands back an opaque locator.
type BlobStore interface {
	Upload(ctx context.Context, code domain.RoomCode, data []byte, fileName string) (string, error)
}

// BlobReader serves uploaded files back by object name.
type BlobReader interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}
