package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/babynest/backend/internal/models"
)

// JournalUpdate replaces the editable fields and appends new image URLs.
type JournalUpdate struct {
	Date         string
	Trimester    string
	Notes        string
	Todos        []models.Todo
	AppendImages []string
	UpdatedAt    time.Time
}

// JournalStore scopes every read and write to the owning user.
type JournalStore interface {
	Create(ctx context.Context, entry *models.JournalEntry) error
	ListByUser(ctx context.Context, userID string, limit, skip int64) ([]models.JournalEntry, int64, error)
	FindOwned(ctx context.Context, id, userID string) (*models.JournalEntry, error)
	UpdateOwned(ctx context.Context, id, userID string, update JournalUpdate) (*models.JournalEntry, error)
	DeleteOwned(ctx context.Context, id, userID string) error
}

type MongoJournalStore struct {
	col *mongo.Collection
}

func NewMongoJournalStore(db *mongo.Database) *MongoJournalStore {
	return &MongoJournalStore{col: db.Collection(journalsCollection)}
}

func ownedFilter(id, userID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return bson.M{"_id": oid, "user_id": userID}, nil
}

func (s *MongoJournalStore) Create(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, entry)
	return err
}

func (s *MongoJournalStore) ListByUser(ctx context.Context, userID string, limit, skip int64) ([]models.JournalEntry, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(skip)

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	entries := []models.JournalEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *MongoJournalStore) FindOwned(ctx context.Context, id, userID string) (*models.JournalEntry, error) {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}
	var entry models.JournalEntry
	if err := s.col.FindOne(ctx, filter).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *MongoJournalStore) UpdateOwned(ctx context.Context, id, userID string, update JournalUpdate) (*models.JournalEntry, error) {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}

	doc := bson.M{
		"$set": bson.M{
			"date":       update.Date,
			"trimester":  update.Trimester,
			"notes":      update.Notes,
			"todos":      update.Todos,
			"updated_at": update.UpdatedAt,
		},
	}
	if len(update.AppendImages) > 0 {
		doc["$push"] = bson.M{"image_urls": bson.M{"$each": update.AppendImages}}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var entry models.JournalEntry
	if err := s.col.FindOneAndUpdate(ctx, filter, doc, opts).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *MongoJournalStore) DeleteOwned(ctx context.Context, id, userID string) error {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return err
	}
	res, err := s.col.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
