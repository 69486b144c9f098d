package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
)

type sessionEntry struct {
	Session *session.Session
	Cancel  context.CancelFunc
}

// Registry maps client tokens to their live connection session and remembers
// the last display name each client used.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	names    map[core.SessionID]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		names:    make(map[core.SessionID]string),
	}
}

// Bind attaches sess to sid and returns the cancel func of the connection it
// replaced, if any.
func (r *Registry) Bind(sid core.SessionID, sess *session.Session, cancel context.CancelFunc) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev context.CancelFunc
	if old, ok := r.sessions[sid]; ok {
		prev = old.Cancel
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("replaced", prev != nil).Msg("bound session")
	return prev
}

func (r *Registry) GetSession(sid core.SessionID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes sid only while it still points at sess, so a replaced
// connection cannot unbind its successor.
func (r *Registry) Unbind(sid core.SessionID, sess *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) RememberName(sid core.SessionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[sid] = name
}

func (r *Registry) NameOf(sid core.SessionID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[sid]
}

type regSnap struct {
	SID     core.SessionID
	Session *session.Session
}

func (r *Registry) Snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, regSnap{SID: sid, Session: e.Session})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
