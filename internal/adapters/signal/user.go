package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
	"github.com/dkeye/roomchat/internal/metrics"
)

func (ctl *SignalWSController) handleSend(
	ctx context.Context,
	sid core.SessionID,
	sess *session.Session,
	conn *WsSignalConn,
	data []byte,
) {
	type sendPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.sendError(sid, conn, "bad_payload")
		return
	}

	if me, ok := sess.Member(); ok && ctl.Limiter != nil && !ctl.Limiter.Allow(me.ID) {
		metrics.RateLimitHits.Inc()
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("send rate limited")
		ctl.sendError(sid, conn, errorCode(fmt.Errorf("%w: slow down", domain.ErrRateLimited)))
		return
	}
	if err := sess.SendText(ctx, p.Text); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("send failed")
		ctl.sendError(sid, conn, errorCode(err))
	}
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	sess *session.Session,
	conn *WsSignalConn,
) {
	resp := struct {
		Type     string          `json:"type"`
		Username string          `json:"username"`
		MemberID domain.MemberID `json:"member_id,omitempty"`
		Room     domain.RoomCode `json:"room,omitempty"`
		State    string          `json:"state"`
	}{
		Type:     "whoami",
		Username: ctl.Orch.Registry.NameOf(sid),
		State:    sess.State().String(),
	}
	if me, ok := sess.Member(); ok {
		resp.Username = me.DisplayName
		resp.MemberID = me.ID
		resp.Room = sess.Room()
	}
	ctl.sendJSON(sid, conn, resp)
}
