package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/metrics"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	sid core.SessionID,
	sess *session.Session,
	c *WsSignalConn,
) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		if me, ok := sess.Member(); ok && ctl.Limiter != nil {
			ctl.Limiter.Forget(me.ID)
		}
		ctl.Orch.OnDisconnect(sid, sess)
		metrics.WSConnections.Dec()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sid, sess, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(
	ctx context.Context,
	sid core.SessionID,
	sess *session.Session,
	c *WsSignalConn,
	data []byte,
) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(sid, c, "bad_payload")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, sid, sess, c, data)
	case "send":
		ctl.handleSend(ctx, sid, sess, c, data)
	case "exit", "leave":
		ctl.handleExit(ctx, sid, sess, c)
	case "ping":
		ctl.handlePing(sid, c)
	case "whoami":
		ctl.handleWhoAmI(sid, sess, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(sid, c, "unknown_type")
	}
}

// sendJSON queues v and applies the backpressure policy when the client is
// not keeping up.
func (ctl *SignalWSController) sendJSON(sid core.SessionID, c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	switch err := c.TrySend(b); err {
	case nil:
		c.drops.Store(0)
	case ErrBackpressure:
		metrics.WSDroppedFrames.Inc()
		drops := int(c.drops.Add(1))
		if ctl.Orch.OnBackPressure(sid, drops) == app.KickMember {
			c.Close()
		}
	}
}

func (ctl *SignalWSController) sendError(sid core.SessionID, c *WsSignalConn, code string) {
	ctl.sendJSON(sid, c, errorFrame{Type: "error", Error: code})
}
