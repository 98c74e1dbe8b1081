package repositories

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/babynest/backend/internal/models"
)

// MessageStore is the append-only chat log.
type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) error
	// History returns every message in room ordered by timestamp, then id.
	History(ctx context.Context, room string) ([]models.Message, error)
	// RoomsBySender returns the distinct rooms sender has written to.
	RoomsBySender(ctx context.Context, sender string) ([]string, error)
}

type MongoMessageStore struct {
	col *mongo.Collection
}

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{col: db.Collection(messagesCollection)}
}

func (s *MongoMessageStore) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

func (s *MongoMessageStore) History(ctx context.Context, room string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.col.Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *MongoMessageStore) RoomsBySender(ctx context.Context, sender string) ([]string, error) {
	values, err := s.col.Distinct(ctx, "room", bson.M{"sender": sender})
	if err != nil {
		return nil, err
	}
	rooms := make([]string, 0, len(values))
	for _, v := range values {
		room, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected room value %T", v)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}
