// Package orch ties transport connections to chat sessions: it creates a
// session per connection, applies the backpressure policy and tears sessions
// down when connections end.
package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

const exitTimeout = 5 * time.Second

type Orchestrator struct {
	Registry  *Registry
	Directory *app.Directory
	Policy    app.Policy
	Deps      session.Deps
}

// Connect creates the session of a new connection. cancel closes the
// connection; it is used to kick it.
func (o *Orchestrator) Connect(sid core.SessionID, listener session.Listener, cancel context.CancelFunc) *session.Session {
	sess := session.New(o.Deps, listener)
	if prev := o.Registry.Bind(sid, sess, cancel); prev != nil {
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("closing previous connection")
		prev()
	}
	return sess
}

func (o *Orchestrator) Session(sid core.SessionID) (*session.Session, bool) {
	return o.Registry.GetSession(sid)
}

// Join remembers the display name for the client and joins the room.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, sess *session.Session, name, room string) error {
	if name == "" {
		name = o.Registry.NameOf(sid)
	}
	if err := sess.Join(ctx, name, room); err != nil {
		return err
	}
	if me, ok := sess.Member(); ok {
		o.Registry.RememberName(sid, me.DisplayName)
	}
	return nil
}

// OnBackPressure is called when a frame for sid could not be queued.
func (o *Orchestrator) OnBackPressure(sid core.SessionID, drops int) app.BackpressureAction {
	if o.Policy == nil {
		return app.DropFrame
	}
	action := o.Policy.OnBackPressure(sid, drops)
	if action == app.KickMember {
		log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Int("drops", drops).Msg("kicking slow client")
		o.Kick(sid)
	}
	return action
}

func (o *Orchestrator) Kick(sid core.SessionID) {
	o.Registry.Cancel(sid)
}

// OnDisconnect exits the room and unbinds the connection. It runs with its
// own deadline since the connection context is usually already canceled.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()
	if err := sess.Exit(ctx); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("exit on disconnect")
	}
	o.Registry.Unbind(sid, sess)
}

func (o *Orchestrator) Members(ctx context.Context, code domain.RoomCode) ([]domain.Member, error) {
	return o.Directory.Members(ctx, code)
}

// Shutdown exits every joined session so rooms do not keep ghost members.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(16)
	for _, snap := range o.Registry.Snapshot() {
		snap := snap
		g.Go(func() error {
			if err := snap.Session.Exit(ctx); err != nil {
				log.Warn().Err(err).Str("module", "app.orch").Str("sid", string(snap.SID)).Msg("exit on shutdown")
			}
			o.Registry.Cancel(snap.SID)
			return nil
		})
	}
	return g.Wait()
}
