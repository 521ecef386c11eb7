// internal/app/system/inputval/inputval.go
package inputval

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrBadID     = errors.New("invalid id")
	ErrBadDate   = errors.New("invalid date: use YYYY-MM-DD or RFC 3339")
	ErrBadAmount = errors.New("invalid amount")
)

// DateLayout is the calendar-date form accepted for due dates and
// expense dates.
const DateLayout = "2006-01-02"

// IsValidEmail performs a structural check on a bare address: no display
// name, no whitespace, no leading/trailing/consecutive dots in either part.
// Single-label domains are allowed.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n<>\"") {
		return false
	}
	return validDotted(s[:at]) && validDotted(s[at+1:])
}

func validDotted(part string) bool {
	if strings.HasPrefix(part, ".") || strings.HasSuffix(part, ".") {
		return false
	}
	return !strings.Contains(part, "..") && !strings.Contains(part, "@")
}

// IsValidHTTPURL reports whether s is an absolute http or https URL.
func IsValidHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidObjectID reports whether s is a 24-character hex ObjectID.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}

// ObjectIDParam reads a chi URL parameter as an ObjectID.
func ObjectIDParam(r *http.Request, name string) (primitive.ObjectID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, ErrBadID
	}
	return id, nil
}

// ParseDate accepts YYYY-MM-DD (midnight UTC) or an RFC 3339 timestamp and
// returns the time in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return t.UTC(), nil
}

// ParseAmount parses a non-negative money amount with at most two decimal
// places. JSON callers may send the amount as a string or a number; both
// arrive here as their textual form.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrBadAmount
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: must not be negative", ErrBadAmount)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: at most two decimal places", ErrBadAmount)
	}
	return d, nil
}

// FieldError is one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result collects field errors from a request.
type Result struct {
	Errors []FieldError
}

// Add records an error for field.
func (r *Result) Add(field, msg string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: msg})
}

// MaxLen records an error when value is longer than max runes.
func (r *Result) MaxLen(field, value string, max int) {
	if len([]rune(value)) > max {
		r.Add(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
}

// Required records an error when value is blank.
func (r *Result) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		r.Add(field, field+" is required")
	}
}

func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first error message, or "".
func (r Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}
