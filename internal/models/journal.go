package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Todo pairs a task with its completion flag so the two can never drift apart.
type Todo struct {
	Text string `bson:"text" json:"text" validate:"max=500"`
	Done bool   `bson:"done" json:"done"`
}

// JournalEntry is a dated pregnancy journal page owned by one user.
type JournalEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Date      string             `bson:"date" json:"date"`
	Trimester string             `bson:"trimester" json:"trimester"`
	Todos     []Todo             `bson:"todos" json:"todos"`
	Notes     string             `bson:"notes" json:"notes"`
	ImageURLs []string           `bson:"image_urls" json:"image_urls"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
