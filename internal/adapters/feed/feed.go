// Package feed turns "something changed in room X" signals into ordered
// full-snapshot deliveries, one goroutine per subscriber.
package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

// Loader reads the current ordered sequence of a room from the backend.
type Loader func(ctx context.Context) ([]domain.Message, error)

// Subscription delivers snapshots produced by a Loader whenever Notify is
// called. Notifications coalesce: a slow subscriber skips straight to the
// latest state instead of replaying every intermediate one.
type Subscription struct {
	room    domain.RoomCode
	load    Loader
	fn      core.SnapshotFunc
	onClose func()

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// Start launches the delivery goroutine and queues the initial snapshot.
// onClose, if set, runs once after the goroutine has stopped.
func Start(room domain.RoomCode, load Loader, fn core.SnapshotFunc, onClose func()) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		room:    room,
		load:    load,
		fn:      fn,
		onClose: onClose,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		exited:  make(chan struct{}),
	}
	s.Notify()
	go s.run()
	return s
}

// Notify schedules a reload. It never blocks.
func (s *Subscription) Notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Cancel stops delivery and waits for an in-flight callback to return.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		<-s.exited
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *Subscription) run() {
	defer close(s.exited)
	var (
		delivered bool
		lastLen   int
		lastID    domain.MessageID
	)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
		}

		msgs, err := s.load(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("module", "adapters.feed").Str("room", s.room.String()).Msg("snapshot load failed")
			continue
		}

		var tail domain.MessageID
		if len(msgs) > 0 {
			tail = msgs[len(msgs)-1].ID
		}
		if delivered && len(msgs) == lastLen && tail == lastID {
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		s.fn(msgs)
		delivered, lastLen, lastID = true, len(msgs), tail
	}
}
