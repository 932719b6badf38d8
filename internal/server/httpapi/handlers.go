package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

// CreateUserPayload is the registration request body.
type CreateUserPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=255"`
}

func (p *CreateUserPayload) normalize() { p.Email = strings.TrimSpace(p.Email) }

// TokenPayload is the login request body.
type TokenPayload struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (p *TokenPayload) normalize() { p.Email = strings.TrimSpace(p.Email) }

// RefreshPayload carries a refresh token to rotate.
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateMePayload is a partial profile change. Email is not updatable.
type UpdateMePayload struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Password *string `json:"password"`
}

// UpdateFlagsPayload is a partial change of an account's flags.
type UpdateFlagsPayload struct {
	IsActive    *bool `json:"is_active"`
	IsStaff     *bool `json:"is_staff"`
	IsSuperuser *bool `json:"is_superuser"`
}

// AccountResponse is what a caller sees of their own account.
type AccountResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TokenResponse is the token endpoint reply.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

type handler struct {
	accounts Accounts
	sessions Sessions
	db       Pinger
	logger   logging.Logger
}

func newHandler(a Accounts, s Sessions, db Pinger, l logging.Logger) *handler {
	return &handler{accounts: a, sessions: s, db: db, logger: l.With("module", "http_api")}
}

func accountResponse(u *models.User) AccountResponse {
	return AccountResponse{Email: u.Email, Name: u.Name}
}

// Health reports 200 when the store answers a ping.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error(ctx, "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateUser registers a new account.
func (h *handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var p CreateUserPayload
	if !decodeAndValidate(w, r, &p) {
		return
	}

	u, err := h.accounts.CreateAccount(r.Context(), p.Email, p.Password, p.Name)
	if err != nil {
		h.logFailure(r.Context(), "create user", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse(u))
}

// CreateToken exchanges credentials for a token pair. Bad credentials are
// a 400, matching the other validation failures of this endpoint.
func (h *handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var p TokenPayload
	if !decodeAndValidate(w, r, &p) {
		return
	}

	pair, err := h.sessions.Login(r.Context(), p.Email, p.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeMessage(w, http.StatusBadRequest, "unable to authenticate with provided credentials")
			return
		}
		h.logFailure(r.Context(), "create token", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// RefreshToken rotates a refresh token.
func (h *handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var p RefreshPayload
	if !decodeAndValidate(w, r, &p) {
		return
	}

	pair, err := h.sessions.RefreshToken(r.Context(), p.RefreshToken)
	if err != nil {
		h.logFailure(r.Context(), "refresh token", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// GetMe returns the caller's own account.
func (h *handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(u))
}

// UpdateMe changes the caller's name and/or password.
func (h *handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrorUnauthorized)
		return
	}

	var p UpdateMePayload
	if !decodeAndValidate(w, r, &p) {
		return
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), u.ID, services.ProfileUpdate{Name: p.Name, Password: p.Password})
	if err != nil {
		h.logFailure(r.Context(), "update profile", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse(updated))
}

// ListUsers returns every account for the admin view.
func (h *handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		h.logFailure(r.Context(), "list users", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdateUserFlags edits the active/staff/superuser flags of an account.
func (h *handler) UpdateUserFlags(w http.ResponseWriter, r *http.Request) {
	var p UpdateFlagsPayload
	if !decodeAndValidate(w, r, &p) {
		return
	}

	id := chi.URLParam(r, "id")
	u, err := h.accounts.SetFlags(r.Context(), id, services.FlagUpdate{
		IsActive:    p.IsActive,
		IsStaff:     p.IsStaff,
		IsSuperuser: p.IsSuperuser,
	})
	if err != nil {
		h.logFailure(r.Context(), "update user flags", err, "account_id", id)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// logFailure logs unexpected errors at error level and client mistakes at debug.
func (h *handler) logFailure(ctx context.Context, op string, err error, args ...any) {
	args = append([]any{"op", op, "error", err}, args...)
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error(ctx, "request failed", args...)
		return
	}
	h.logger.Debug(ctx, "request rejected", args...)
}
