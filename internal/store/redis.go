package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keeps conversations as JSON strings and messages in a per-conversation hash.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, now: time.Now}, nil
}

func userKey(uid domain.UserID) string { return "user:" + string(uid) }

func conversationKey(id domain.ConversationID) string { return "conv:" + string(id) }

func directIndexKey(key string) string { return "conv:direct:" + key }

func messagesKey(id domain.ConversationID) string { return "conv:" + string(id) + ":messages" }

func (r *Redis) FindOrCreateConversation(ctx context.Context, members []domain.UserID, opts core.ConversationOptions) (*domain.Conversation, error) {
	members, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	c := &domain.Conversation{
		ID:        domain.ConversationID(uuid.NewString()),
		Members:   members,
		IsGroup:   opts.IsGroup,
		GroupName: opts.GroupName,
		CreatedAt: r.now().UTC(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, conversationKey(c.ID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("store conversation: %w", err)
	}
	if opts.IsGroup {
		return c, nil
	}

	// The conversation is written before the index so a winner is always loadable.
	idx := directIndexKey(directKey(members))
	won, err := r.client.SetNX(ctx, idx, string(c.ID), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("index conversation: %w", err)
	}
	if won {
		return c, nil
	}
	r.client.Del(ctx, conversationKey(c.ID))
	existing, err := r.client.Get(ctx, idx).Result()
	if err != nil {
		return nil, fmt.Errorf("load direct index: %w", err)
	}
	return r.GetConversation(ctx, domain.ConversationID(existing))
}

func (r *Redis) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	data, err := r.client.Get(ctx, conversationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var c domain.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &c, nil
}

func (r *Redis) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error) {
	c, err := r.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(msg.UserID) {
		return nil, core.ErrNotConversationMember
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := r.client.HSet(ctx, messagesKey(c.ID), string(msg.ID), data).Err(); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return c, nil
}

func (r *Redis) SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error {
	fields := []any{"online", strconv.FormatBool(online)}
	if !online {
		fields = append(fields, "lastSeen", strconv.FormatInt(at.UnixMilli(), 10))
	}
	err := r.client.HSet(ctx, userKey(uid), fields...).Err()
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

func (r *Redis) GetUser(ctx context.Context, uid domain.UserID) (*domain.User, error) {
	fields, err := r.client.HGetAll(ctx, userKey(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUserNotFound
	}
	u := &domain.User{ID: uid, Username: fields["username"]}
	u.Online, _ = strconv.ParseBool(fields["online"])
	if ms, err := strconv.ParseInt(fields["lastSeen"], 10, 64); err == nil {
		u.LastSeen = time.UnixMilli(ms).UTC()
	}
	return u, nil
}

func (r *Redis) MarkMessagesRead(ctx context.Context, id domain.ConversationID, reader domain.UserID) (int64, error) {
	if _, err := r.GetConversation(ctx, id); err != nil {
		return 0, err
	}
	all, err := r.client.HGetAll(ctx, messagesKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}
	updates := make([]any, 0)
	for mid, raw := range all {
		var msg domain.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return 0, fmt.Errorf("decode message %s: %w", mid, err)
		}
		if msg.UserID == reader || msg.IsRead {
			continue
		}
		msg.IsRead = true
		data, err := json.Marshal(&msg)
		if err != nil {
			return 0, err
		}
		updates = append(updates, mid, data)
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := r.client.HSet(ctx, messagesKey(id), updates...).Err(); err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return int64(len(updates) / 2), nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close(context.Context) error { return r.client.Close() }
