// Package redisstore keeps room messages and members in Redis and pushes
// changes to subscribers over Redis pub/sub.
//
// Layout per room (prefix defaults to "chat:"):
//
//	<prefix>room:<CODE>:seq      INCR counter, the room's total order
//	<prefix>room:<CODE>:log      sorted set of message ids scored by seq
//	<prefix>room:<CODE>:bodies   hash id -> message JSON
//	<prefix>room:<CODE>:members  hash member id -> member JSON
//	<prefix>room:<CODE>:events   pub/sub channel, one publish per change
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/adapters/feed"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

const DefaultPrefix = "chat:"

// appendScript assigns the next sequence number and records the message in
// one atomic step, so observers never see a gap filled in later.
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[3], seq, ARGV[1])
redis.call('PUBLISH', KEYS[4], ARGV[1])
return seq
`)

var deleteScript = redis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
if removed == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('PUBLISH', KEYS[3], ARGV[1])
return 1
`)

// Store implements core.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ core.Store = (*Store)(nil)

// New connects using a redis:// URL and verifies the connection.
func New(ctx context.Context, redisURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client. The store owns it from then on.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(code domain.RoomCode, part string) string {
	return fmt.Sprintf("%sroom:%s:%s", s.prefix, code, part)
}

func (s *Store) eventsChannel(code domain.RoomCode) string {
	return s.key(code, "events")
}

func (s *Store) Append(ctx context.Context, code domain.RoomCode, msg domain.Message) (domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	msg.ID = domain.MessageID(ulid.Make().String())
	msg.Seq = 0
	data, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}

	keys := []string{s.key(code, "seq"), s.key(code, "bodies"), s.key(code, "log"), s.eventsChannel(code)}
	seq, err := appendScript.Run(ctx, s.client, keys, string(msg.ID), string(data)).Int64()
	if err != nil {
		return domain.Message{}, fmt.Errorf("redis append: %w", err)
	}
	msg.Seq = uint64(seq)
	return msg, nil
}

func (s *Store) Delete(ctx context.Context, code domain.RoomCode, id domain.MessageID) error {
	keys := []string{s.key(code, "log"), s.key(code, "bodies"), s.eventsChannel(code)}
	removed, err := deleteScript.Run(ctx, s.client, keys, string(id)).Int()
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if removed == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Messages loads the ordered sequence of a room.
func (s *Store) Messages(ctx context.Context, code domain.RoomCode) ([]domain.Message, error) {
	entries, err := s.client.ZRangeWithScores(ctx, s.key(code, "log"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []domain.Message{}, nil
	}
	ids := make([]string, len(entries))
	for i, z := range entries {
		ids[i], _ = z.Member.(string)
	}
	bodies, err := s.client.HMGet(ctx, s.key(code, "bodies"), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(entries))
	for i, raw := range bodies {
		str, ok := raw.(string)
		if !ok {
			// deleted between the two reads
			continue
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			log.Warn().Err(err).Str("module", "adapters.redisstore").Str("id", ids[i]).Msg("skipping undecodable message")
			continue
		}
		m.Seq = uint64(entries[i].Score)
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, code domain.RoomCode, fn core.SnapshotFunc) (core.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.eventsChannel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	events := pubsub.Channel()

	load := func(ctx context.Context) ([]domain.Message, error) {
		return s.Messages(ctx, code)
	}
	sub := feed.Start(code, load, fn, func() {
		if err := pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Warn().Err(err).Str("module", "adapters.redisstore").Msg("pubsub close")
		}
	})

	go func() {
		for range events {
			sub.Notify()
		}
	}()
	return sub, nil
}

func (s *Store) UpsertMember(ctx context.Context, code domain.RoomCode, member domain.Member) error {
	data, err := json.Marshal(member)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.key(code, "members"), string(member.ID), string(data)).Err()
}

func (s *Store) RemoveMember(ctx context.Context, code domain.RoomCode, id domain.MemberID) error {
	return s.client.HDel(ctx, s.key(code, "members"), string(id)).Err()
}

func (s *Store) Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error) {
	all, err := s.client.HGetAll(ctx, s.key(code, "members")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(all))
	for id, raw := range all {
		var m domain.Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Warn().Err(err).Str("module", "adapters.redisstore").Str("member", id).Msg("skipping undecodable member")
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
