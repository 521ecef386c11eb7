// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is a household to-do item owned by one user.
//
// Tasks are soft-deleted: DeletedAt is set and the row stays in the
// collection so change streams still carry its last state.
type Task struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title     string             `bson:"title" json:"title"`
	Completed bool               `bson:"completed" json:"completed"`
	DueDate   *time.Time         `bson:"due_date,omitempty" json:"due_date,omitempty"`
	DeletedAt *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsDeleted reports whether the task has been soft-deleted.
func (t Task) IsDeleted() bool {
	return t.DeletedAt != nil
}
