// internal/domain/models/expense.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Expense sources.
const (
	ExpenseSourceManual = "manual"
	ExpenseSourceBank   = "bank"
)

// Expense is a single outflow. Date is the accounting date the user (or the
// bank) assigned; it is distinct from CreatedAt.
//
// Amount is stored as Decimal128 through the decimal codec registered in
// the Mongo client (see bootstrap.ConnectDB).
type Expense struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Amount      decimal.Decimal    `bson:"amount" json:"amount"`
	Date        time.Time          `bson:"date" json:"date"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	Source      string             `bson:"source" json:"source"`                               // manual | bank
	ExternalID  string             `bson:"external_id,omitempty" json:"external_id,omitempty"` // bank transaction id

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
