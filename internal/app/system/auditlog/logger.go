// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (signup, login, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Account controls logging for account changes (budget, bank links, syncs).
	Account string
}

// Logger records audit events to MongoDB (via audit.Store) and zap.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAccount:
		setting = l.config.Account
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func fromRequest(r *http.Request, ev audit.Event) audit.Event {
	if r != nil {
		ev.IP = ratelimit.ClientIP(r)
		ev.UserAgent = r.UserAgent()
	}
	return ev
}

// --- Authentication Events ---

// Signup logs a new account.
func (l *Logger) Signup(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventSignup,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// LoginFailed logs a failed login. userID may be nil when no account matched.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, eventType string, userID *primitive.ObjectID, email, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"attempted_email": email},
	}))
}

// Logout logs a logout.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    &userID,
		Success:   true,
	}))
}

// --- Account Events ---

// BudgetChanged logs a budget update.
func (l *Logger) BudgetChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID, budget string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAccount,
		EventType: audit.EventBudgetChanged,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"budget": budget},
	}))
}

// BankLinkCreated logs a new bank link.
func (l *Logger) BankLinkCreated(ctx context.Context, r *http.Request, userID, linkID primitive.ObjectID, institution string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAccount,
		EventType: audit.EventBankLinkCreated,
		UserID:    &userID,
		Success:   true,
		Details: map[string]string{
			"bank_link_id": linkID.Hex(),
			"institution":  institution,
		},
	}))
}

// BankSync logs the outcome of one bank sync. r is nil for background syncs.
func (l *Logger) BankSync(ctx context.Context, r *http.Request, userID, linkID primitive.ObjectID, upserted int, removed int64, syncErr error) {
	ev := audit.Event{
		Category:  audit.CategoryAccount,
		EventType: audit.EventBankSync,
		UserID:    &userID,
		Success:   syncErr == nil,
		Details: map[string]string{
			"bank_link_id": linkID.Hex(),
			"upserted":     strconv.Itoa(upserted),
			"removed":      strconv.FormatInt(removed, 10),
		},
	}
	if syncErr != nil {
		ev.FailureReason = syncErr.Error()
	}
	l.Log(ctx, fromRequest(r, ev))
}
