package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/universalbff/user-api/internal/domain/model"
	"github.com/universalbff/user-api/internal/service"
)

// OAuthHandlers exposes the facade's issuance flows over HTTP. Flow-level
// failures ride inside the TokenIssuingResult envelope with status 200, per
// the OAuth error-response convention; only transport-level problems map to
// HTTP error statuses.
type OAuthHandlers struct {
	Svc    *service.UserService
	Logger *slog.Logger
}

type authenticateRequest struct {
	ClientID string `json:"client_id"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Authenticate handles POST /oauth/authenticate.
func (h *OAuthHandlers) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	sessionID, message, err := h.Svc.Authenticate(r.Context(), service.AuthenticateInput{
		ClientID: req.ClientID,
		Login:    req.Login,
		Password: req.Password,
	})
	if err != nil {
		h.Logger.Error("authenticate failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "server_error", errors.New("authentication could not be processed"))
		return
	}
	if sessionID == "" {
		WriteJSON(w, http.StatusUnauthorized, authenticateResponse{Message: message})
		return
	}
	WriteJSON(w, http.StatusOK, authenticateResponse{SessionID: sessionID, Message: message})
}

// Scopes handles GET /oauth/scopes. The session is validated first; scope
// discovery is not available to anonymous callers.
func (h *OAuthHandlers) Scopes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := query.Get("session_id")
	preferred := splitParam(query.Get("preferred"))

	descriptors, ok := h.Svc.AvailableScopesForSession(sessionID, preferred)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "invalid_request", errors.New("session is unknown or expired"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"scopes": descriptors})
}

type codeRequest struct {
	ClientID  string   `json:"client_id"`
	SessionID string   `json:"session_id"`
	Scopes    []string `json:"scopes"`
}

type codeResponse struct {
	Code             string `json:"code,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Code handles POST /oauth/code: it stages a token under a one-time
// retrieval code.
func (h *OAuthHandlers) Code(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	code, result := h.Svc.CreateRetrievalCode(r.Context(), req.ClientID, req.SessionID, req.Scopes)
	if result.Failed() {
		WriteJSON(w, http.StatusOK, codeResponse{Error: result.Error, ErrorDescription: result.ErrorDescription})
		return
	}
	WriteJSON(w, http.StatusOK, codeResponse{Code: code})
}

// Token handles POST /oauth/token, dispatching on grant_type. Requests are
// form-encoded per RFC6749.
func (h *OAuthHandlers) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var result model.TokenIssuingResult
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		result = h.Svc.RedeemCode(r.Context(),
			r.PostForm.Get("client_id"),
			r.PostForm.Get("client_secret"),
			r.PostForm.Get("code"))
	case "client_credentials":
		result = h.Svc.ClientCredentialsToken(r.Context(),
			r.PostForm.Get("client_id"),
			r.PostForm.Get("client_secret"),
			splitParam(r.PostForm.Get("scope")))
	case "refresh_token":
		result = h.Svc.RefreshToken(r.PostForm.Get("refresh_token"))
	case "implicit":
		result = h.Svc.IssueTokenForSession(r.Context(),
			r.PostForm.Get("client_id"),
			r.PostForm.Get("session_id"),
			splitParam(r.PostForm.Get("scope")))
	default:
		result = model.TokenError(model.ErrCodeInvalidRequest, "unsupported grant_type")
	}
	WriteJSON(w, http.StatusOK, result)
}

// DelegationBegin handles GET /oauth/delegation/begin. When the client's
// target requires delegation, the caller is redirected to the target's
// authorize URL with the anonymous session id riding in the state parameter.
func (h *OAuthHandlers) DelegationBegin(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	redirectURI := r.URL.Query().Get("redirect_uri")

	required, directive, err := h.Svc.DelegationRequired(r.Context(), clientID)
	if err != nil {
		h.Logger.Error("delegation check failed", "client_id", clientID, "error", err)
		WriteError(w, http.StatusInternalServerError, "server_error", errors.New("delegation check failed"))
		return
	}
	if !required {
		WriteJSON(w, http.StatusOK, map[string]any{"delegation_required": false})
		return
	}

	authorize, err := url.Parse(directive.TargetAuthorizeURL)
	if err != nil {
		h.Logger.Error("target authorize URL is not parseable", "client_id", clientID, "error", err)
		WriteError(w, http.StatusInternalServerError, "server_error", errors.New("target is misconfigured"))
		return
	}
	query := authorize.Query()
	query.Set("response_type", "code")
	query.Set("client_id", directive.TargetClientID)
	query.Set("state", directive.AnonymousSessionID)
	if redirectURI != "" {
		query.Set("redirect_uri", redirectURI)
	}
	authorize.RawQuery = query.Encode()

	http.Redirect(w, r, authorize.String(), http.StatusFound)
}

// DelegationCallback handles GET /oauth/delegation/callback: the delegated
// return leg. state carries the pending session id.
func (h *OAuthHandlers) DelegationCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	redirectURI := query.Get("redirect_uri")
	if code == "" || state == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", errors.New("code and state are required"))
		return
	}

	if !h.Svc.CompleteDelegation(r.Context(), code, state, redirectURI) {
		WriteJSON(w, http.StatusUnauthorized, map[string]any{"completed": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"completed": true, "session_id": state})
}

type introspectResponse struct {
	Active bool           `json:"active"`
	Claims map[string]any `json:"claims,omitempty"`
}

// Introspect handles POST /oauth/introspect with an RFC7662-shaped response.
func (h *OAuthHandlers) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	token := r.PostForm.Get("token")
	if token == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", errors.New("token is required"))
		return
	}

	active, claims := h.Svc.Introspect(token)
	WriteJSON(w, http.StatusOK, introspectResponse{Active: active, Claims: claims})
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}
