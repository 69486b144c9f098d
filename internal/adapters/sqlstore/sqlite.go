// Package sqlstore keeps rooms in a single SQLite file. Subscribers are
// woken in-process after each commit, so one file serves one server.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/adapters/feed"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_messages (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	room_code TEXT NOT NULL,
	body      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_messages_room ON room_messages (room_code, seq);

CREATE TABLE IF NOT EXISTS room_members (
	room_code    TEXT NOT NULL,
	member_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	joined_at    TEXT NOT NULL,
	PRIMARY KEY (room_code, member_id)
);
`

type Store struct {
	db  *sql.DB
	hub *feed.Hub
}

var _ core.Store = (*Store)(nil)

// New opens (or creates) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// A single writer keeps AUTOINCREMENT order equal to commit order.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, hub: feed.NewHub()}, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO room_messages (id, room_code, body) VALUES (?, ?, ?)`,
		string(msg.ID), code.String(), string(body))
	if err != nil {
		return domain.Message{}, fmt.Errorf("sqlite append: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, err
	}
	msg.Seq = uint64(seq)
	s.hub.Notify(code)
	return msg, nil
}

func (s *Store) Delete(ctx context.Context, code domain.RoomCode, id domain.MessageID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_messages WHERE room_code = ? AND id = ?`, code.String(), string(id))
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	s.hub.Notify(code)
	return nil
}

// Messages loads the ordered sequence of a room.
func (s *Store) Messages(ctx context.Context, code domain.RoomCode) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, body FROM room_messages WHERE room_code = ? ORDER BY seq`, code.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		var (
			seq  int64
			body string
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			log.Warn().Err(err).Str("module", "adapters.sqlstore").Int64("seq", seq).Msg("skipping undecodable message")
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_members (room_code, member_id, display_name, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_code, member_id)
		DO UPDATE SET display_name = excluded.display_name, joined_at = excluded.joined_at
	`, code.String(), string(member.ID), member.DisplayName, member.JoinedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) RemoveMember(ctx context.Context, code domain.RoomCode, id domain.MemberID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_code = ? AND member_id = ?`, code.String(), string(id))
	return err
}

func (s *Store) Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, display_name, joined_at FROM room_members
		WHERE room_code = ?
		ORDER BY joined_at
	`, code.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		var id, name, joined string
		if err := rows.Scan(&id, &name, &joined); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, joined)
		if err != nil {
			return nil, fmt.Errorf("member %s joined_at: %w", id, err)
		}
		out = append(out, domain.Member{ID: domain.MemberID(id), DisplayName: name, JoinedAt: at})
	}
	return out, rows.Err()
}
