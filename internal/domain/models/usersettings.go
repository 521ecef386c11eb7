// internal/domain/models/usersettings.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSettings holds per-user preferences. One document per user_id.
type UserSettings struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	MonthlyBudget decimal.Decimal    `bson:"monthly_budget" json:"monthly_budget"`
	UpdatedAt     *time.Time         `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}
