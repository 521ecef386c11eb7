// internal/domain/models/document.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentKinds lists the accepted values of Document.Kind.
var DocumentKinds = []string{"warranty", "manual", "receipt", "insurance", "other"}

// IsDocumentKind reports whether k is an accepted document kind.
func IsDocumentKind(k string) bool {
	for _, v := range DocumentKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Document is an entry in the user's document vault. Only metadata lives
// here; file bytes are handled elsewhere.
type Document struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Kind      string             `bson:"kind,omitempty" json:"kind,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
