package signal

import "github.com/dkeye/roomchat/internal/core"

func (ctl *SignalWSController) handlePing(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(sid, conn, resp)
}
