package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

type SendMessageRequest struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Content        string                `json:"content"`
	FileURL        string                `json:"fileUrl,omitempty"`
	Type           string                `json:"type"`
}

// JoinConversation subscribes conn to a conversation the user belongs to.
func (o *Orchestrator) JoinConversation(ctx context.Context, conn core.SignalConnection, uid domain.UserID, id domain.ConversationID) error {
	conv, err := o.Store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if !conv.HasMember(uid) {
		return core.ErrNotConversationMember
	}
	o.Rooms.Join(id, uid, conn)
	log.Debug().Str("module", "orch").Str("user", string(uid)).Str("conversation", string(id)).Msg("joined conversation")
	return nil
}

func (o *Orchestrator) LeaveConversation(conn core.SignalConnection, id domain.ConversationID) bool {
	return o.Rooms.Leave(id, conn)
}

// SendMessage persists a message and delivers it twice over: to every
// subscriber of the conversation room, then directly to each other member
// that is online. A connection reached by the room is not sent the frame
// again; clients de-duplicate by message id across reconnects.
func (o *Orchestrator) SendMessage(ctx context.Context, author domain.UserID, req SendMessageRequest) (*domain.Message, error) {
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId required", core.ErrInvalidMessage)
	}
	typ, err := domain.ParseMessageType(req.Type)
	if err != nil {
		return nil, err
	}
	msg, err := domain.NewMessage(req.ConversationID, author, req.Content, req.FileURL, typ, o.now().UTC())
	if err != nil {
		return nil, err
	}
	conv, err := o.Store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	frame := encode(MessageEvent{Type: EventReceiveMessage, Message: msg})
	reached := make(map[core.SignalConnection]struct{})
	if room, ok := o.Rooms.Get(conv.ID); ok {
		res := o.broadcast(room, nil, frame)
		for _, c := range res.Reached {
			reached[c] = struct{}{}
		}
		metrics.MessagesDelivered.WithLabelValues("room").Add(float64(res.SendTo))
	}

	direct := 0
	for _, uid := range conv.Others(author) {
		conn, ok := o.Registry.Lookup(uid)
		if !ok {
			continue
		}
		if _, done := reached[conn]; done {
			continue
		}
		if o.send(nil, core.Subscriber{UserID: uid, Conn: conn}, frame) {
			direct++
		}
	}
	metrics.MessagesDelivered.WithLabelValues("direct").Add(float64(direct))

	log.Debug().
		Str("module", "orch").
		Str("conversation", string(conv.ID)).
		Str("message", string(msg.ID)).
		Int("room", len(reached)).
		Int("direct", direct).
		Msg("message delivered")
	return msg, nil
}

// Typing tells the room's other subscribers; nothing is stored.
func (o *Orchestrator) Typing(conn core.SignalConnection, uid domain.UserID, id domain.ConversationID, isTyping bool) {
	room, ok := o.Rooms.Get(id)
	if !ok {
		return
	}
	o.broadcast(room, conn, encode(TypingEvent{
		Type:           EventUserTyping,
		ConversationID: id,
		UserID:         uid,
		IsTyping:       isTyping,
	}))
}

func (o *Orchestrator) MarkMessagesRead(ctx context.Context, uid domain.UserID, id domain.ConversationID) (int64, error) {
	n, err := o.Store.MarkMessagesRead(ctx, id, uid)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if room, ok := o.Rooms.Get(id); ok {
		o.broadcast(room, nil, encode(ReadEvent{
			Type:           EventMessagesMarkedRead,
			ConversationID: id,
			UserID:         uid,
			Count:          n,
		}))
	}
	return n, nil
}
