package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("user", string(c.uid)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("user", string(c.uid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
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

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(c.uid)).Msg("readPump closing")
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("user", string(c.uid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, c, data)
		}
	}
}

type envelope struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
}

type response struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type errorResponse struct {
	Type    string `json:"type"`
	ReqID   string `json:"reqId,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errBadPayload = errors.New("bad payload")

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.replyError(c, "", errBadPayload)
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(c, env)

	case "joinConversation":
		ctl.handleJoinConversation(ctx, c, env, data)
	case "leaveConversation":
		ctl.handleLeaveConversation(c, env, data)
	case "sendMessage":
		ctl.handleSendMessage(ctx, c, env, data)
	case "typing", "stopTyping":
		ctl.handleTyping(c, env, data)
	case "markMessagesRead":
		ctl.handleMarkRead(ctx, c, env, data)

	case "callUser":
		ctl.handleCallUser(c, env, data)
	case "answerCall":
		ctl.handleAnswerCall(c, env, data)
	case "iceCandidate":
		ctl.handleICECandidate(c, env, data)
	case "call-ended":
		ctl.handleEndCall(c, env, data)
	case "rejectCall":
		ctl.handleRejectCall(c, env, data)

	case "startGroupCall", "joinGroupCall":
		ctl.handleGroupJoin(c, env, data)
	case "leaveGroupCall":
		ctl.handleGroupLeave(c, env, data)
	case "groupCallOffer", "groupCallAnswer", "groupCallIceCandidate":
		ctl.handleGroupSignal(c, env, data)
	case "getParticipants":
		ctl.handleGetParticipants(c, env, data)

	case "createOrJoinRoom", "getRouterRtpCapabilities":
		ctl.handleRoomCapabilities(c, env, data)
	case "createWebRtcTransport":
		ctl.handleCreateTransport(ctx, c, env, data)
	case "connectTransport":
		ctl.handleConnectTransport(ctx, c, env, data)
	case "produce":
		ctl.handleProduce(ctx, c, env, data)
	case "consume":
		ctl.handleConsume(ctx, c, env, data)
	case "getProducers":
		ctl.handleGetProducers(c, env, data)
	case "closeProducer":
		ctl.handleCloseProducer(c, env, data)
	case "pauseConsumer", "resumeConsumer":
		ctl.handleConsumerPause(c, env, data)
	case "leaveRoom":
		ctl.handleLeaveRoom(c, env, data)

	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.replyError(c, env.ReqID, errUnknownEvent)
	}
}

var errUnknownEvent = errors.New("unknown event")

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("reply dropped")
	}
}

func (ctl *SignalWSController) reply(c *WsSignalConn, env envelope, data any) {
	ctl.sendJSON(c, response{Type: "response", ReqID: env.ReqID, Data: data})
}

// replyError sends a coded error. Internal failures never leak their text.
func (ctl *SignalWSController) replyError(c *WsSignalConn, reqID string, err error) {
	code := core.ErrorCode(err)
	msg := err.Error()
	switch {
	case errors.Is(err, errBadPayload):
		code = "BAD_PAYLOAD"
	case errors.Is(err, errUnknownEvent):
		code = "UNKNOWN_EVENT"
	case errors.Is(err, errRateLimited):
		code = "RATE_LIMITED"
	case code == "INTERNAL":
		log.Error().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("request failed")
		msg = "internal error"
	}
	ctl.sendJSON(c, errorResponse{Type: "error", ReqID: reqID, Error: code, Message: msg})
}

// decode unmarshals a request payload, answering BAD_PAYLOAD on failure.
func (ctl *SignalWSController) decode(c *WsSignalConn, env envelope, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("type", env.Type).Msg("bad payload")
		ctl.replyError(c, env.ReqID, errBadPayload)
		return false
	}
	return true
}
