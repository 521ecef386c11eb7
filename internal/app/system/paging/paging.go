// internal/app/system/paging/paging.go
package paging

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PageSize is the default number of rows returned by paged lists.
const PageSize = 50

// MaxPageSize caps the "limit" query parameter.
const MaxPageSize = 200

// ErrBadCursor is returned when the "before" cursor is not an ObjectID.
var ErrBadCursor = errors.New("invalid page cursor")

// ParseLimit reads the "limit" query parameter. Missing or invalid values
// give PageSize; larger values are clamped to MaxPageSize.
func ParseLimit(r *http.Request) int {
	s := query.Get(r, "limit")
	if s == "" {
		return PageSize
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return PageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// LimitPlusOne returns limit+1 as int64 for look-ahead pagination
// (fetch one extra document to detect a next page).
func LimitPlusOne(limit int) int64 { return int64(limit + 1) }

// ParseBefore reads the "before" keyset cursor, the id of the last row of
// the previous page. ok is false when no cursor was sent.
func ParseBefore(r *http.Request) (id primitive.ObjectID, ok bool, err error) {
	s := query.Get(r, "before")
	if s == "" {
		return primitive.NilObjectID, false, nil
	}
	id, err = primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, false, ErrBadCursor
	}
	return id, true, nil
}

// TrimPage trims a slice fetched with LimitPlusOne back to limit rows and
// reports whether a further page exists.
func TrimPage[T any](rows *[]T, limit int) (hasNext bool) {
	if len(*rows) > limit {
		*rows = (*rows)[:limit]
		return true
	}
	return false
}

// NextCursor returns the "before" value for the page after rows, or "" when
// there is none.
func NextCursor[T any](rows []T, hasNext bool, idFn func(T) primitive.ObjectID) string {
	if !hasNext || len(rows) == 0 {
		return ""
	}
	return idFn(rows[len(rows)-1]).Hex()
}
