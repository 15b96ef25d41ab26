package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Mongo struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
	now           func() time.Time
}

type conversationDoc struct {
	domain.Conversation `bson:",inline"`
	DirectKey           string `bson:"directKey,omitempty"`
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = "huddle"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	m := &Mongo{
		client:        client,
		users:         db.Collection("users"),
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		now:           time.Now,
	}
	_, err = m.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "directKey", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("conversation index: %w", err)
	}
	_, err = m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("message index: %w", err)
	}
	return m, nil
}

func (m *Mongo) FindOrCreateConversation(ctx context.Context, members []domain.UserID, opts core.ConversationOptions) (*domain.Conversation, error) {
	members, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	doc := conversationDoc{Conversation: domain.Conversation{
		ID:        domain.ConversationID(uuid.NewString()),
		Members:   members,
		IsGroup:   opts.IsGroup,
		GroupName: opts.GroupName,
		CreatedAt: m.now().UTC().Truncate(time.Millisecond),
	}}
	if opts.IsGroup {
		if _, err := m.conversations.InsertOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		return &doc.Conversation, nil
	}

	doc.DirectKey = directKey(members)
	var out conversationDoc
	err = m.conversations.FindOneAndUpdate(ctx,
		bson.M{"directKey": doc.DirectKey},
		bson.M{"$setOnInsert": doc},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// Concurrent upsert of the same pair; the other insert won.
		err = m.conversations.FindOne(ctx, bson.M{"directKey": doc.DirectKey}).Decode(&out)
	}
	if err != nil {
		return nil, fmt.Errorf("find or create conversation: %w", err)
	}
	return &out.Conversation, nil
}

func (m *Mongo) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var out conversationDoc
	err := m.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &out.Conversation, nil
}

func (m *Mongo) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error) {
	c, err := m.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(msg.UserID) {
		return nil, core.ErrNotConversationMember
	}
	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return c, nil
}

func (m *Mongo) SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error {
	set := bson.M{"isOnline": online}
	if !online {
		set["lastSeen"] = at.UTC()
	}
	_, err := m.users.UpdateOne(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

func (m *Mongo) GetUser(ctx context.Context, uid domain.UserID) (*domain.User, error) {
	var u domain.User
	err := m.users.FindOne(ctx, bson.M{"_id": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (m *Mongo) MarkMessagesRead(ctx context.Context, id domain.ConversationID, reader domain.UserID) (int64, error) {
	if _, err := m.GetConversation(ctx, id); err != nil {
		return 0, err
	}
	res, err := m.messages.UpdateMany(ctx,
		bson.M{"conversationId": id, "userId": bson.M{"$ne": reader}, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
