package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sid core.SessionID,
	sess *session.Session,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(sid, conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, sess, p.Name, p.Room); err != nil {
		ctl.sendError(sid, conn, errorCode(err))
		return
	}
	me, _ := sess.Member()
	ctl.sendJSON(sid, conn, joinedFrame{Type: "joined", Room: sess.Room(), Member: me})
}

// handleExit leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleExit(
	ctx context.Context,
	sid core.SessionID,
	sess *session.Session,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("exit")
	me, joined := sess.Member()
	if err := sess.Exit(ctx); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("exit incomplete")
	}
	if joined && ctl.Limiter != nil {
		ctl.Limiter.Forget(me.ID)
	}
	ctl.sendJSON(sid, conn, map[string]any{
		"type": "left",
	})
}

func (ctl *SignalWSController) pushHistory(sid core.SessionID, conn *WsSignalConn, room domain.RoomCode, view []session.Entry) {
	ctl.sendJSON(sid, conn, messagesFrame{Type: "messages", Room: room, Messages: view})
}
