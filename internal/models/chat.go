package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one append-only chat line. Room is the canonical room key string.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Room      string             `bson:"room" json:"room"`
	Sender    string             `bson:"sender" json:"sender"`
	Message   string             `bson:"message" json:"message"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}
