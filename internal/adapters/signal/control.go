package signal

type pong struct {
	Type string `json:"type"`
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, pong{Type: "pong"})
}

// handleWhoAmI answers with the user id the handshake authenticated.
func (ctl *SignalWSController) handleWhoAmI(conn *WsSignalConn, env envelope) {
	ctl.reply(conn, env, map[string]any{
		"userId": conn.uid,
		"online": ctl.Orch.Registry.IsOnline(conn.uid),
	})
}
