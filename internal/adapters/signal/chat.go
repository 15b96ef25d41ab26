package signal

import (
	"context"

	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type conversationPayload struct {
	ConversationID domain.ConversationID `json:"conversationId"`
}

func (ctl *SignalWSController) handleJoinConversation(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	var p conversationPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	if err := ctl.Orch.JoinConversation(ctx, c, c.uid, p.ConversationID); err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	log.Info().Str("module", "signal").Str("user", string(c.uid)).Str("conversation", string(p.ConversationID)).Msg("join conversation")
	ctl.reply(c, env, p)
}

func (ctl *SignalWSController) handleLeaveConversation(c *WsSignalConn, env envelope, data []byte) {
	var p conversationPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, map[string]any{
		"conversationId": p.ConversationID,
		"left":           ctl.Orch.LeaveConversation(c, p.ConversationID),
	})
}

// The envelope owns "type", so the message type travels as messageType.
type sendMessagePayload struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Content        string                `json:"content"`
	FileURL        string                `json:"fileUrl"`
	MessageType    string                `json:"messageType"`
}

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	if !ctl.limiter.Allow(c.uid) {
		ctl.replyError(c, env.ReqID, errRateLimited)
		return
	}
	var p sendMessagePayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	msg, err := ctl.Orch.SendMessage(ctx, c.uid, orch.SendMessageRequest{
		ConversationID: p.ConversationID,
		Content:        p.Content,
		FileURL:        p.FileURL,
		Type:           p.MessageType,
	})
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, msg)
}

func (ctl *SignalWSController) handleTyping(c *WsSignalConn, env envelope, data []byte) {
	var p conversationPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.Orch.Typing(c, c.uid, p.ConversationID, env.Type == "typing")
}

func (ctl *SignalWSController) handleMarkRead(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	var p conversationPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	n, err := ctl.Orch.MarkMessagesRead(ctx, c.uid, p.ConversationID)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]any{"conversationId": p.ConversationID, "count": n})
}
