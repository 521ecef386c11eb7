// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	userstore "github.com/sheltrhq/sheltr/internal/app/store/users"
	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/normalize"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	Users      *userstore.Store
	SessionMgr *auth.SessionManager
	Limiter    *ratelimit.LoginLimiter
	Audit      *auditlog.Logger
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger
}

func NewHandler(db *mongo.Database, sessionMgr *auth.SessionManager, limiter *ratelimit.LoginLimiter, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	if limiter == nil {
		limiter = ratelimit.NewLoginLimiter()
	}
	return &Handler{
		Users:      userstore.New(db),
		SessionMgr: sessionMgr,
		Limiter:    limiter,
		Audit:      audit,
		ErrLog:     errLog,
		Log:        logger,
	}
}

type credentials struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

func toResponse(u models.User) userResponse {
	return userResponse{ID: u.ID.Hex(), FullName: u.FullName, Email: u.Email}
}

// HandleLogin handles POST /login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "login: bad body", err, err.Error())
		return
	}
	email := normalize.Email(in.Email)
	if email == "" || in.Password == "" {
		uierrors.WriteError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	if ok, reason := h.Limiter.Check(r, email); !ok {
		h.Audit.LoginFailed(r.Context(), r, audit.EventLoginFailedRateLimit, nil, email, "rate limited")
		uierrors.WriteError(w, http.StatusTooManyRequests, reason)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.Authenticate(ctx, email, in.Password)
	if err != nil {
		var ae *userstore.AuthError
		if errors.As(err, &ae) {
			h.auditFailure(r, ae, email)
			uierrors.WriteError(w, http.StatusUnauthorized, userstore.ErrInvalidCredentials.Error())
			return
		}
		h.ErrLog.LogServerError(w, r, "login: authenticate", err, "A database error occurred.")
		return
	}

	if err := h.startSession(w, r, *u); err != nil {
		h.ErrLog.LogServerError(w, r, "login: save session", err, "Unable to sign in.")
		return
	}
	h.Limiter.ResetEmail(email)
	h.Audit.LoginSuccess(r.Context(), r, u.ID, u.Email)

	uierrors.WriteJSON(w, http.StatusOK, toResponse(*u))
}

func (h *Handler) auditFailure(r *http.Request, ae *userstore.AuthError, email string) {
	var uid *primitive.ObjectID
	if !ae.UserID.IsZero() {
		id := ae.UserID
		uid = &id
	}
	eventType := audit.EventLoginFailedWrongPassword
	switch ae.Reason {
	case userstore.ReasonUnknownEmail:
		eventType = audit.EventLoginFailedUserNotFound
	case userstore.ReasonDisabled:
		eventType = audit.EventLoginFailedUserDisabled
	}
	h.Audit.LoginFailed(r.Context(), r, eventType, uid, email, strings.ReplaceAll(ae.Reason, "_", " "))
}

// HandleSignup handles POST /signup. The new account is signed in.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "signup: bad body", err, err.Error())
		return
	}
	if strings.TrimSpace(in.Email) != "" && !inputval.IsValidEmail(in.Email) {
		uierrors.WriteError(w, http.StatusBadRequest, "A valid email address is required.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.Create(ctx, in.FullName, in.Email, in.Password)
	switch {
	case errors.Is(err, userstore.ErrDuplicateEmail):
		uierrors.WriteError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, userstore.ErrEmailRequired), errors.Is(err, userstore.ErrShortPassword):
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.ErrLog.LogServerError(w, r, "signup: create user", err, "Unable to create account.")
		return
	}

	if err := h.startSession(w, r, u); err != nil {
		h.ErrLog.LogServerError(w, r, "signup: save session", err, "Account created; please sign in.")
		return
	}
	h.Audit.Signup(r.Context(), r, u.ID, u.Email)

	uierrors.WriteJSON(w, http.StatusCreated, toResponse(u))
}

// ServeMe handles GET /me for the signed-in user.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, userResponse{ID: su.ID, FullName: su.Name, Email: su.LoginID})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u models.User) error {
	return h.SessionMgr.Login(w, r, auth.SessionUser{
		ID:      u.ID.Hex(),
		Name:    u.FullName,
		LoginID: u.Email,
	})
}
