// Package pgstore keeps rooms in PostgreSQL. Appends take a per-room advisory
// lock so sequence order equals commit order, and NOTIFY wakes subscribers
// in every process connected to the database.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/adapters/feed"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

const notifyChannel = "room_events"

const schema = `
CREATE TABLE IF NOT EXISTS room_messages (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	room_code  TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_room_messages_room ON room_messages (room_code, seq);

CREATE TABLE IF NOT EXISTS room_members (
	room_code    TEXT NOT NULL,
	member_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	joined_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (room_code, member_id)
);
`

// Store implements core.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	hub  *feed.Hub

	cancel   context.CancelFunc
	listener chan struct{}
}

var _ core.Store = (*Store)(nil)

// New connects, applies the schema and starts the LISTEN loop.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:     pool,
		hub:      feed.NewHub(),
		cancel:   cancel,
		listener: make(chan struct{}),
	}
	go s.listen(listenCtx)
	return s, nil
}

func (s *Store) Close() error {
	s.cancel()
	<-s.listener
	s.hub.Close()
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// listen holds one pooled connection on LISTEN and reconnects on failure.
func (s *Store) listen(ctx context.Context) {
	defer close(s.listener)
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("module", "adapters.pgstore").Msg("listener dropped, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		// Changes may have landed while nobody was listening.
		s.hub.NotifyAll()
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.hub.Notify(domain.RoomCode(n.Payload))
	}
}

func (s *Store) Append(ctx context.Context, code domain.RoomCode, msg domain.Message) (domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	msg.ID = domain.MessageID(ulid.Make().String())
	msg.Seq = 0
	body, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}

	var seq int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, code.String()); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO room_messages (id, room_code, body)
			VALUES ($1, $2, $3)
			RETURNING seq
		`, string(msg.ID), code.String(), body).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, code.String())
		return err
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("postgres append: %w", err)
	}
	msg.Seq = uint64(seq)
	return msg, nil
}

func (s *Store) Delete(ctx context.Context, code domain.RoomCode, id domain.MessageID) error {
	var removed int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM room_messages WHERE room_code = $1 AND id = $2`, code.String(), string(id))
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		if removed == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, code.String())
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	if removed == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Messages loads the ordered sequence of a room.
func (s *Store) Messages(ctx context.Context, code domain.RoomCode) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, body FROM room_messages
		WHERE room_code = $1
		ORDER BY seq
	`, code.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			seq  int64
			body []byte
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		var m domain.Message
		if err := json.Unmarshal(body, &m); err != nil {
			log.Warn().Err(err).Str("module", "adapters.pgstore").Int64("seq", seq).Msg("skipping undecodable message")
			continue
		}
		m.Seq = uint64(seq)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Subscribe(_ context.Context, code domain.RoomCode, fn core.SnapshotFunc) (core.Subscription, error) {
	load := func(ctx context.Context) ([]domain.Message, error) {
		return s.Messages(ctx, code)
	}
	return s.hub.Subscribe(code, load, fn), nil
}

func (s *Store) UpsertMember(ctx context.Context, code domain.RoomCode, member domain.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_members (room_code, member_id, display_name, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_code, member_id)
		DO UPDATE SET display_name = EXCLUDED.display_name, joined_at = EXCLUDED.joined_at
	`, code.String(), string(member.ID), member.DisplayName, member.JoinedAt)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, code domain.RoomCode, id domain.MemberID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM room_members WHERE room_code = $1 AND member_id = $2`, code.String(), string(id))
	return err
}

func (s *Store) Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT member_id, display_name, joined_at FROM room_members
		WHERE room_code = $1
		ORDER BY joined_at
	`, code.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		var (
			m  domain.Member
			id string
		)
		if err := rows.Scan(&id, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.ID = domain.MemberID(id)
		out = append(out, m)
	}
	return out, rows.Err()
}
