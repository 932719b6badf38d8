// Package httpapi is the REST binding of the account directory: chi routes,
// payload validation, bearer-token authentication and the mapping of
// directory errors to HTTP status codes.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

// Accounts is the directory surface used by the handlers.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password, name string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd services.ProfileUpdate) (*models.User, error)
	ListAccounts(ctx context.Context) ([]*models.User, error)
	SetFlags(ctx context.Context, id string, upd services.FlagUpdate) (*models.User, error)
}

// Sessions issues tokens and resolves bearer tokens to accounts.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Authorize(ctx context.Context, accessToken string) (*models.User, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter creates and configures the chi router for the account API.
func NewRouter(accounts Accounts, sessions Sessions, db Pinger, allowedOrigins []string, logger logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if allowed := allowedMethods(r); len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
		}
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := newHandler(accounts, sessions, db, logger)
	authn := authenticate(sessions)

	r.Get("/healthz", h.Health)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/create/", h.CreateUser)
		r.Post("/token/", h.CreateToken)
		r.Post("/token/refresh/", h.RefreshToken)

		r.With(authn).Get("/me/", h.GetMe)
		r.With(authn).Patch("/me/", h.UpdateMe)
		r.With(authn).Put("/me/", h.UpdateMe)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authn, requireStaff)
		r.Get("/users/", h.ListUsers)
		r.Patch("/users/{id}/", h.UpdateUserFlags)
	})

	return r
}

var routedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// allowedMethods lists the methods routed for the request path. chi only
// fills in Allow for its default 405 handler.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}
	var allowed []string
	for _, m := range routedMethods {
		if rctx.Routes.Match(chi.NewRouteContext(), m, r.URL.Path) {
			allowed = append(allowed, m)
		}
	}
	return allowed
}
