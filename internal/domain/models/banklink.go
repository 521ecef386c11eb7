// internal/domain/models/banklink.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bank link sync statuses.
const (
	BankSyncNever   = "never"
	BankSyncOK      = "ok"
	BankSyncFailed  = "failed"
	BankSyncRunning = "running"
)

// BankLink connects a user to one institution at the financial-data
// provider. Cursor is the provider's opaque position in the transaction
// stream; an empty cursor means "from the beginning".
type BankLink struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Institution string             `bson:"institution" json:"institution"`
	AccessToken string             `bson:"access_token" json:"-"`
	Cursor      string             `bson:"cursor" json:"-"`

	SyncStatus   string     `bson:"sync_status" json:"sync_status"`
	SyncError    string     `bson:"sync_error,omitempty" json:"sync_error,omitempty"`
	LastSyncedAt *time.Time `bson:"last_synced_at,omitempty" json:"last_synced_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
