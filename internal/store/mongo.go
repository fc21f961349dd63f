package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	modelCollection   = "model"
	userCollection    = "user"
	chatCollection    = "chat"
	openAPICollection = "openapi"
)

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findByID(ctx context.Context, collection string, id ID, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to find %s %s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) GetModel(ctx context.Context, id ID) (*Model, error) {
	var m Model
	if err := s.findByID(ctx, modelCollection, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) CreateModel(ctx context.Context, m *Model) error {
	if m.ID.IsZero() {
		m.ID = NewID()
	}
	if m.UpdateTime.IsZero() {
		m.UpdateTime = time.Now()
	}
	if _, err := s.db.Collection(modelCollection).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateModel(ctx context.Context, m *Model) error {
	res, err := s.db.Collection(modelCollection).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("failed to update model %s: %w", m.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id ID) (*User, error) {
	var u User
	if err := s.findByID(ctx, userCollection, id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID.IsZero() {
		u.ID = NewID()
	}
	if _, err := s.db.Collection(userCollection).InsertOne(ctx, u); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetChatTail slices the content array server side so only the last n items leave the database.
func (s *MongoStore) GetChatTail(ctx context.Context, chatID ID, n int) ([]ChatItemSimple, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": chatID}}},
		{{Key: "$project", Value: bson.M{"content": bson.M{"$slice": bson.A{"$content", -n}}}}},
		{{Key: "$unwind", Value: "$content"}},
		{{Key: "$project", Value: bson.M{"obj": "$content.obj", "value": "$content.value"}}},
	}

	cur, err := s.db.Collection(chatCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate chat %s: %w", chatID, err)
	}
	defer cur.Close(ctx)

	var items []ChatItemSimple
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s content: %w", chatID, err)
	}
	if len(items) == 0 {
		// $unwind drops empty chats, so tell absent apart from empty.
		count, err := s.db.Collection(chatCollection).CountDocuments(ctx, bson.M{"_id": chatID})
		if err != nil {
			return nil, fmt.Errorf("failed to count chat %s: %w", chatID, err)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
	}
	return items, nil
}

func (s *MongoStore) CreateChat(ctx context.Context, c *Chat) (ID, error) {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if c.UpdateTime.IsZero() {
		c.UpdateTime = time.Now()
	}
	if _, err := s.db.Collection(chatCollection).InsertOne(ctx, c); err != nil {
		return "", fmt.Errorf("failed to insert chat: %w", err)
	}
	return c.ID, nil
}

func (s *MongoStore) AppendChatContent(ctx context.Context, chatID ID, items []ChatItem, now time.Time) error {
	update := bson.M{
		"$push": bson.M{"content": bson.M{"$each": items}},
		"$set":  bson.M{"updateTime": now},
	}
	res, err := s.db.Collection(chatCollection).UpdateByID(ctx, chatID, update)
	if err != nil {
		return fmt.Errorf("failed to append to chat %s: %w", chatID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) FindAPICredential(ctx context.Context, apiKey string) (*APICredential, error) {
	var c APICredential
	err := s.db.Collection(openAPICollection).FindOne(ctx, bson.M{"apiKey": apiKey}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api credential: %w", err)
	}
	return &c, nil
}

func (s *MongoStore) CreateAPICredential(ctx context.Context, c *APICredential) error {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now()
	}
	if _, err := s.db.Collection(openAPICollection).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert api credential: %w", err)
	}
	return nil
}

func (s *MongoStore) TouchAPICredential(ctx context.Context, id ID, now time.Time) error {
	res, err := s.db.Collection(openAPICollection).UpdateByID(ctx, id, bson.M{"$set": bson.M{"lastUsedTime": now}})
	if err != nil {
		return fmt.Errorf("failed to update api credential %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
