package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/sessions"

	"github.com/FACorreiaa/peakheight-api/internal/types"
	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

const (
	defaultNext     = "/onboarding"
	authPage        = "/auth"
	authFailedPage  = "/auth?error=auth_failed"
	callbackPath    = "/auth/callback"
	keyVerifier     = "pkce_verifier"
	keyNext         = "next"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
	keyUserID       = "user_id"
)

// OAuthHandler runs the browser side of sign-in: provider redirect, PKCE
// callback, cookie session and sign-out.
type OAuthHandler struct {
	logger     *slog.Logger
	gate       *Gate
	provider   AuthProvider
	store      sessions.Store
	cookieName string
	publicURL  string
	apiURL     string
	now        func() time.Time
}

type OAuthConfig struct {
	CookieName   string
	CookieSecret string
	Secure       bool
	MaxAge       time.Duration
	// PublicURL is the web app origin redirects land on.
	PublicURL string
	// APIURL is the origin of this service, used for the provider callback.
	APIURL string
}

func NewOAuthHandler(gate *Gate, provider AuthProvider, cfg OAuthConfig, logger *slog.Logger) *OAuthHandler {
	store := sessions.NewCookieStore([]byte(cfg.CookieSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &OAuthHandler{
		logger:     logger,
		gate:       gate,
		provider:   provider,
		store:      store,
		cookieName: cfg.CookieName,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		now:        time.Now,
	}
}

// Register mounts the OAuth routes on mux.
func (h *OAuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+callbackPath, h.Callback)
	mux.HandleFunc("GET /auth/session", h.Session)
	mux.HandleFunc("POST /auth/signout", h.SignOut)
	mux.HandleFunc("GET /auth/{provider}", h.Start)
}

// Start redirects the browser to the provider's consent screen.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := r.PathValue("provider")

	verifier, challenge, err := NewPKCE()
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to start oauth", slog.Any("error", err))
		h.redirect(w, r, authFailedPage)
		return
	}

	target, err := h.provider.AuthorizeURL(provider, h.apiURL+callbackPath, challenge)
	if err != nil {
		h.logger.WarnContext(ctx, "Rejected oauth provider", slog.String("provider", provider), slog.Any("error", err))
		h.redirect(w, r, authFailedPage)
		return
	}

	sess, _ := h.store.Get(r, h.cookieName)
	sess.Values[keyVerifier] = verifier
	if next := safeNext(r.URL.Query().Get("next")); next != "" {
		sess.Values[keyNext] = next
	}
	if err := sess.Save(r, w); err != nil {
		h.logger.ErrorContext(ctx, "Failed to save oauth session", slog.Any("error", err))
		h.redirect(w, r, authFailedPage)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback exchanges the authorization code and lands the user on next.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("method", "Callback"))

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirect(w, r, authPage)
		return
	}

	sess, _ := h.store.Get(r, h.cookieName)
	verifier, _ := sess.Values[keyVerifier].(string)
	if verifier == "" {
		l.WarnContext(ctx, "Auth callback without pkce verifier")
		h.redirect(w, r, authFailedPage)
		return
	}

	next := safeNext(r.URL.Query().Get("next"))
	if next == "" {
		next, _ = sess.Values[keyNext].(string)
	}
	if next == "" {
		next = defaultNext
	}

	tokens, err := h.provider.ExchangeCodeForSession(ctx, code, verifier)
	if err != nil {
		l.ErrorContext(ctx, "Auth callback error", slog.Any("error", err))
		h.redirect(w, r, authFailedPage)
		return
	}

	userID := ""
	if tokens.User != nil {
		userID = tokens.User.ID
		if err := h.gate.profiles.EnsureProfile(ctx, ProfileFromOAuth(tokens.User)); err != nil {
			l.ErrorContext(ctx, "Error creating user profile", slog.String("userID", userID), slog.Any("error", err))
		}
	}

	delete(sess.Values, keyVerifier)
	delete(sess.Values, keyNext)
	h.storeTokens(sess, tokens, userID)
	if err := sess.Save(r, w); err != nil {
		l.ErrorContext(ctx, "Failed to save session cookie", slog.Any("error", err))
		h.redirect(w, r, authFailedPage)
		return
	}

	h.gate.Notify(ctx, EventSignedIn, userID)
	h.redirect(w, r, next)
}

type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	*State
}

// Session hands the cookie session to the web app, refreshing it when the
// access token has expired.
func (h *OAuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := h.store.Get(r, h.cookieName)
	access, _ := sess.Values[keyAccessToken].(string)
	refresh, _ := sess.Values[keyRefreshToken].(string)
	expiresAt, _ := sess.Values[keyExpiresAt].(int64)

	if access == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	if expiresAt > 0 && h.now().Unix() >= expiresAt && refresh != "" {
		tokens, err := h.provider.RefreshSession(ctx, refresh)
		if err != nil {
			h.logger.WarnContext(ctx, "Session refresh failed", slog.Any("error", err))
			h.clear(w, r, sess)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
			return
		}
		userID, _ := sess.Values[keyUserID].(string)
		if tokens.User != nil {
			userID = tokens.User.ID
		}
		h.storeTokens(sess, tokens, userID)
		if err := sess.Save(r, w); err != nil {
			h.logger.ErrorContext(ctx, "Failed to save refreshed session", slog.Any("error", err))
		}
		h.gate.Notify(ctx, EventTokenRefreshed, userID)
		access, refresh, expiresAt = tokens.AccessToken, tokens.RefreshToken, h.expiry(tokens)
	}

	state, err := h.gate.Load(ctx, access)
	if err != nil {
		if errors.Is(err, types.ErrUnauthenticated) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load session", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		State:        state,
	})
}

// SignOut ends the provider session and clears the cookie.
func (h *OAuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := h.store.Get(r, h.cookieName)
	access, _ := sess.Values[keyAccessToken].(string)
	userID, _ := sess.Values[keyUserID].(string)

	if access == "" && h.gate.verifier != nil {
		if authCtx, err := interceptors.AuthenticateRequest(r, h.gate.verifier); err == nil {
			access, _ = interceptors.GetAccessTokenFromContext(authCtx)
			userID, _ = interceptors.GetUserIDFromContext(authCtx)
		}
	}

	_ = h.gate.SignOut(ctx, access, userID)
	h.clear(w, r, sess)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *OAuthHandler) storeTokens(sess *sessions.Session, tokens *Tokens, userID string) {
	sess.Values[keyAccessToken] = tokens.AccessToken
	sess.Values[keyRefreshToken] = tokens.RefreshToken
	sess.Values[keyExpiresAt] = h.expiry(tokens)
	if userID != "" {
		sess.Values[keyUserID] = userID
	}
}

func (h *OAuthHandler) expiry(tokens *Tokens) int64 {
	if tokens.ExpiresAt > 0 {
		return tokens.ExpiresAt
	}
	if tokens.ExpiresIn > 0 {
		return h.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	}
	return 0
}

func (h *OAuthHandler) clear(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to clear session cookie", slog.Any("error", err))
	}
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, h.publicURL+path, http.StatusFound)
}

// safeNext accepts only same-origin absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
