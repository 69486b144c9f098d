// Package memstore is an in-process Store used for development and tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/adapters/feed"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

type room struct {
	messages []domain.Message
	members  map[domain.MemberID]domain.Member
}

// Store is a threadsafe in-memory Store. Rooms are created on first touch
// and never removed.
type Store struct {
	mu    sync.RWMutex
	seq   uint64
	rooms map[domain.RoomCode]*room
	hub   *feed.Hub
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms: make(map[domain.RoomCode]*room),
		hub:   feed.NewHub(),
	}
}

// roomLocked returns the room, creating it. Callers hold s.mu for writing.
func (s *Store) roomLocked(code domain.RoomCode) *room {
	r, ok := s.rooms[code]
	if !ok {
		r = &room{members: make(map[domain.MemberID]domain.Member)}
		s.rooms[code] = r
	}
	return r
}

func (s *Store) Append(_ context.Context, code domain.RoomCode, msg domain.Message) (domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	s.mu.Lock()
	s.seq++
	msg.ID = domain.MessageID(ulid.Make().String())
	msg.Seq = s.seq
	r := s.roomLocked(code)
	r.messages = append(r.messages, msg)
	s.mu.Unlock()

	log.Debug().Str("module", "adapters.memstore").Str("room", code.String()).Uint64("seq", msg.Seq).Msg("message appended")
	s.hub.Notify(code)
	return msg, nil
}

func (s *Store) Subscribe(_ context.Context, code domain.RoomCode, fn core.SnapshotFunc) (core.Subscription, error) {
	load := func(context.Context) ([]domain.Message, error) {
		return s.Messages(code), nil
	}
	return s.hub.Subscribe(code, load, fn), nil
}

func (s *Store) Delete(_ context.Context, code domain.RoomCode, id domain.MessageID) error {
	s.mu.Lock()
	r, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	idx := -1
	for i, m := range r.messages {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	r.messages = append(r.messages[:idx:idx], r.messages[idx+1:]...)
	s.mu.Unlock()

	s.hub.Notify(code)
	return nil
}

// Messages returns a copy of the room's ordered sequence.
func (s *Store) Messages(code domain.RoomCode) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	if !ok {
		return []domain.Message{}
	}
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (s *Store) UpsertMember(_ context.Context, code domain.RoomCode, member domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomLocked(code).members[member.ID] = member
	return nil
}

func (s *Store) RemoveMember(_ context.Context, code domain.RoomCode, id domain.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[code]; ok {
		delete(r.members, id)
	}
	return nil
}

func (s *Store) Members(_ context.Context, code domain.RoomCode) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[code]
	if !ok {
		return []domain.Member{}, nil
	}
	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}
