// Package session drives one participant through a room: join, send,
// receive and exit. A Session is bound to its stores at construction and
// can be joined again after it exits.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/codec"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
	"github.com/dkeye/roomchat/internal/metrics"
)

type State int

const (
	Disconnected State = iota
	Joining
	Active
	Exiting
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	default:
		return "disconnected"
	}
}

// Registrar is the membership side of a room, satisfied by *app.Directory.
type Registrar interface {
	Join(ctx context.Context, code domain.RoomCode, id domain.MemberID, displayName string) error
	Leave(ctx context.Context, code domain.RoomCode, id domain.MemberID) error
}

// Entry is a message as one participant sees it.
type Entry struct {
	domain.Message
	// Body is the revealed text of text messages.
	Body string `json:"body,omitempty"`
	Mine bool   `json:"mine"`
}

// Listener receives the full revealed history after every room change. It
// runs on the delivery goroutine and must not call Exit.
type Listener func(view []Entry)

// File is an attachment to send.
type File struct {
	Name string
	Data []byte
}

type Deps struct {
	Directory Registrar
	Messages  core.MessageStore
	Blobs     core.BlobStore
	Codec     codec.Codec
}

type Session struct {
	dir      Registrar
	messages core.MessageStore
	blobs    core.BlobStore
	codec    codec.Codec
	listener Listener
	now      func() time.Time

	mu      sync.Mutex
	state   State
	gen     uint64
	member  domain.Member
	room    domain.RoomCode
	key     codec.Key
	sub     core.Subscription
	history []domain.Message
}

// New builds a disconnected session. listener may be nil.
func New(deps Deps, listener Listener) *Session {
	c := deps.Codec
	if c == nil {
		c = codec.Legacy{}
	}
	return &Session{
		dir:      deps.Directory,
		messages: deps.Messages,
		blobs:    deps.Blobs,
		codec:    c,
		listener: listener,
		now:      time.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Member returns the identity of the current membership, if any.
func (s *Session) Member() (domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member, s.state == Active
}

// Room is the normalized code of the room being joined or occupied.
func (s *Session) Room() domain.RoomCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// History returns the revealed view of the last delivered sequence.
func (s *Session) History() []Entry {
	s.mu.Lock()
	msgs, key, me := s.history, s.key, s.member.ID
	s.mu.Unlock()
	return s.reveal(msgs, key, me)
}

// Join enters the room named by roomCode under displayName. Both are trimmed
// and the code is case-insensitive.
func (s *Session) Join(ctx context.Context, displayName, roomCode string) error {
	code := domain.NormalizeRoomCode(roomCode)
	member, err := domain.NewMember(displayName, s.now())
	if err == nil {
		err = code.Validate()
	}
	if err != nil {
		metrics.Joins.WithLabelValues("invalid").Inc()
		return err
	}

	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: join while %s", domain.ErrInvalidState, state)
	}
	s.state = Joining
	s.gen++
	gen := s.gen
	s.member = *member
	s.room = code
	s.key = s.codec.DeriveKey(code)
	s.history = nil
	s.mu.Unlock()

	logger := log.With().Str("module", "app.session").Str("room", code.String()).Str("member", string(member.ID)).Logger()

	if err := s.dir.Join(ctx, code, member.ID, member.DisplayName); err != nil {
		s.reset()
		metrics.Joins.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("join: register failed")
		return fmt.Errorf("%w: %w", domain.ErrJoinFailed, err)
	}

	sub, err := s.messages.Subscribe(ctx, code, func(msgs []domain.Message) {
		s.deliver(gen, msgs)
	})
	if err != nil {
		if lerr := s.dir.Leave(context.WithoutCancel(ctx), code, member.ID); lerr != nil {
			logger.Warn().Err(lerr).Msg("join: rollback leave failed")
		}
		s.reset()
		metrics.Joins.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("join: subscribe failed")
		return fmt.Errorf("%w: %w: subscribe: %w", domain.ErrJoinFailed, domain.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.state = Active
	s.mu.Unlock()
	metrics.Joins.WithLabelValues("ok").Inc()
	metrics.ActiveSessions.Inc()

	if _, err := s.messages.Append(ctx, code, domain.NewSystemMessage(domain.JoinedText(member.DisplayName), s.now())); err != nil {
		logger.Warn().Err(err).Msg("join: announce failed")
	} else {
		metrics.MessagesSent.WithLabelValues(string(domain.KindSystem)).Inc()
	}
	logger.Info().Str("name", member.DisplayName).Msg("joined")
	return nil
}

// SendText obscures body with the room key and appends it. A blank body is
// ignored.
func (s *Session) SendText(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	member, code, key, err := s.active()
	if err != nil {
		return err
	}

	wire := s.codec.Obscure(body, key)
	msg := domain.NewTextMessage(member, wire, wire != body, s.now())
	if _, err := s.messages.Append(ctx, code, msg); err != nil {
		return fmt.Errorf("%w: append text: %w", domain.ErrStoreUnavailable, err)
	}
	metrics.MessagesSent.WithLabelValues(string(domain.KindText)).Inc()
	return nil
}

// SendFile uploads f and appends a file message pointing at it. Nothing is
// appended when the upload fails.
func (s *Session) SendFile(ctx context.Context, f File) (domain.Message, error) {
	if strings.TrimSpace(f.Name) == "" {
		return domain.Message{}, domain.ErrFileNameEmpty
	}
	member, code, _, err := s.active()
	if err != nil {
		return domain.Message{}, err
	}

	ref, err := s.blobs.Upload(ctx, code, f.Data, f.Name)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("module", "app.session").Str("room", code.String()).Str("file", f.Name).Msg("upload failed")
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	metrics.Uploads.WithLabelValues("ok").Inc()

	msg := domain.NewFileMessage(member, f.Name, int64(len(f.Data)), ref, s.now())
	stored, err := s.messages.Append(ctx, code, msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append file: %w", domain.ErrStoreUnavailable, err)
	}
	metrics.MessagesSent.WithLabelValues(string(domain.KindFile)).Inc()
	return stored, nil
}

// Exit leaves the room and tears the session down. Teardown always completes;
// the returned error only reports what could not be recorded in the stores.
// Exit outside the active state does nothing.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return nil
	}
	s.state = Exiting
	member, code, sub := s.member, s.room, s.sub
	s.mu.Unlock()

	logger := log.With().Str("module", "app.session").Str("room", code.String()).Str("member", string(member.ID)).Logger()

	var errs []error
	if err := s.dir.Leave(ctx, code, member.ID); err != nil {
		logger.Warn().Err(err).Msg("exit: deregister failed")
		errs = append(errs, err)
	}
	if _, err := s.messages.Append(ctx, code, domain.NewSystemMessage(domain.LeftText(member.DisplayName), s.now())); err != nil {
		logger.Warn().Err(err).Msg("exit: announce failed")
		errs = append(errs, fmt.Errorf("%w: announce exit: %w", domain.ErrStoreUnavailable, err))
	} else {
		metrics.MessagesSent.WithLabelValues(string(domain.KindSystem)).Inc()
	}

	if sub != nil {
		sub.Cancel()
	}
	s.reset()
	metrics.ActiveSessions.Dec()
	metrics.Exits.Inc()
	logger.Info().Msg("exited")
	return errors.Join(errs...)
}

func (s *Session) active() (domain.Member, domain.RoomCode, codec.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return domain.Member{}, "", "", fmt.Errorf("%w: not in a room", domain.ErrInvalidState)
	}
	return s.member, s.room, s.key, nil
}

// reset discards identity, key and history and invalidates in-flight deliveries.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = Disconnected
	s.member = domain.Member{}
	s.room = ""
	s.key = ""
	s.sub = nil
	s.history = nil
}

func (s *Session) deliver(gen uint64, msgs []domain.Message) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.history = msgs
	key, me, listener := s.key, s.member.ID, s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(s.reveal(msgs, key, me))
	}
}

func (s *Session) reveal(msgs []domain.Message, key codec.Key, me domain.MemberID) []Entry {
	view := make([]Entry, len(msgs))
	for i, m := range msgs {
		e := Entry{Message: m, Mine: me != "" && m.SenderID == me}
		if m.Kind != domain.KindFile {
			e.Body = m.Text
			if m.Encoded {
				e.Body = s.codec.Reveal(m.Text, key)
			}
		}
		view[i] = e
	}
	return view
}
