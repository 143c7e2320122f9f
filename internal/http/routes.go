package httpx

import (
	"log/slog"
	"net/http"

	"github.com/universalbff/user-api/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Users  *service.UserService
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	oauth := &OAuthHandlers{Svc: services.Users, Logger: logger}
	mux.HandleFunc("POST /oauth/authenticate", oauth.Authenticate)
	mux.HandleFunc("GET /oauth/scopes", oauth.Scopes)
	mux.HandleFunc("POST /oauth/code", oauth.Code)
	mux.HandleFunc("POST /oauth/token", oauth.Token)
	mux.HandleFunc("GET /oauth/delegation/begin", oauth.DelegationBegin)
	mux.HandleFunc("GET /oauth/delegation/callback", oauth.DelegationCallback)
	mux.HandleFunc("POST /oauth/introspect", oauth.Introspect)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return Chain(mux,
		Recover(logger),
		Logging(logger),
		RequestID(),
	)
}
