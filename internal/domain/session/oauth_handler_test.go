package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOAuthTest() (*OAuthHandler, *http.ServeMux, *fakeProvider, *fakeProfiles) {
	g, provider, _, profiles := newTestGate(nil)
	h := NewOAuthHandler(g, provider, OAuthConfig{
		CookieName:   "peakheight_session",
		CookieSecret: "0123456789abcdef0123456789abcdef",
		MaxAge:       time.Hour,
		PublicURL:    "https://app.peakheight.test/",
		APIURL:       "https://api.peakheight.test",
	}, newTestLogger())
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux, provider, profiles
}

func serve(mux http.Handler, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestOAuth_StartAndCallback(t *testing.T) {
	_, mux, provider, profiles := setupOAuthTest()

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/google?next=/dashboard", nil), nil)
	require.Equal(t, http.StatusFound, rec.Code)

	target, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "proj.supabase.co", target.Host)
	assert.Equal(t, "https://api.peakheight.test/auth/callback", target.Query().Get("redirect_to"))
	challenge := target.Query().Get("code_challenge")
	require.NotEmpty(t, challenge)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	provider.ExchangeFunc = func(_ context.Context, code, verifier string) (*Tokens, error) {
		assert.Equal(t, "auth-code", code)
		assert.Equal(t, challenge, Challenge(verifier), "callback must present the verifier from Start")
		return &Tokens{
			AccessToken:  "tok",
			RefreshToken: "refresh",
			ExpiresIn:    3600,
			User: &User{ID: "user-tok", Email: "tok@example.com", UserMetadata: map[string]any{
				"full_name": "Ada Lovelace", "given_name": "Ada", "family_name": "Lovelace",
			}},
		}, nil
	}

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code", nil), cookies)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.peakheight.test/dashboard", rec.Header().Get("Location"))
	require.Len(t, profiles.seeds, 1)
	assert.Equal(t, "Ada", profiles.seeds[0].FirstName)

	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/auth/session", nil), rec.Result().Cookies())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AccessToken string `json:"accessToken"`
		User        *User  `json:"user"`
		Premium     bool   `json:"premium"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "tok", body.AccessToken)
	assert.Equal(t, "user-tok", body.User.ID)
	assert.False(t, body.Premium)
}

func TestOAuth_StartRejectsUnknownProvider(t *testing.T) {
	_, mux, _, _ := setupOAuthTest()
	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/myspace", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.peakheight.test/auth?error=auth_failed", rec.Header().Get("Location"))
}

func TestOAuth_CallbackFailures(t *testing.T) {
	t.Run("no code", func(t *testing.T) {
		_, mux, _, _ := setupOAuthTest()
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback", nil), nil)
		assert.Equal(t, "https://app.peakheight.test/auth", rec.Header().Get("Location"))
	})

	t.Run("no verifier", func(t *testing.T) {
		_, mux, _, _ := setupOAuthTest()
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x", nil), nil)
		assert.Equal(t, "https://app.peakheight.test/auth?error=auth_failed", rec.Header().Get("Location"))
	})

	t.Run("exchange fails", func(t *testing.T) {
		_, mux, provider, profiles := setupOAuthTest()
		start := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/apple", nil), nil)
		provider.ExchangeFunc = func(context.Context, string, string) (*Tokens, error) {
			return nil, &APIError{Status: 400, Message: "invalid flow state"}
		}
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x", nil), start.Result().Cookies())
		assert.Equal(t, "https://app.peakheight.test/auth?error=auth_failed", rec.Header().Get("Location"))
		assert.Empty(t, profiles.seeds)
	})

	t.Run("profile failure still signs in", func(t *testing.T) {
		_, mux, provider, profiles := setupOAuthTest()
		profiles.err = errors.New("db down")
		start := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/google", nil), nil)
		provider.ExchangeFunc = func(context.Context, string, string) (*Tokens, error) {
			return &Tokens{AccessToken: "tok", User: &User{ID: "user-tok"}}, nil
		}
		rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&next=//evil.test", nil), start.Result().Cookies())
		assert.Equal(t, "https://app.peakheight.test/onboarding", rec.Header().Get("Location"))
	})
}

func TestOAuth_SessionRefreshesExpiredToken(t *testing.T) {
	_, mux, provider, _ := setupOAuthTest()
	start := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/google", nil), nil)
	provider.ExchangeFunc = func(context.Context, string, string) (*Tokens, error) {
		return &Tokens{AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute).Unix(), User: &User{ID: "user-old"}}, nil
	}
	cb := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x", nil), start.Result().Cookies())
	require.Equal(t, http.StatusFound, cb.Code)

	provider.RefreshFunc = func(_ context.Context, refresh string) (*Tokens, error) {
		assert.Equal(t, "r1", refresh)
		return &Tokens{AccessToken: "new", RefreshToken: "r2", ExpiresIn: 3600, User: &User{ID: "user-new"}}, nil
	}

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/session", nil), cb.Result().Cookies())
	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "new", body.AccessToken)
	assert.Equal(t, "r2", body.RefreshToken)

	provider.RefreshFunc = func(context.Context, string) (*Tokens, error) {
		return nil, &APIError{Status: 401, Message: "revoked"}
	}
	rec = serve(mux, httptest.NewRequest(http.MethodGet, "/auth/session", nil), cb.Result().Cookies())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuth_SessionWithoutCookie(t *testing.T) {
	_, mux, _, _ := setupOAuthTest()
	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/session", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuth_SignOut(t *testing.T) {
	h, mux, provider, _ := setupOAuthTest()

	start := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/google", nil), nil)
	provider.ExchangeFunc = func(context.Context, string, string) (*Tokens, error) {
		return &Tokens{AccessToken: "tok", ExpiresIn: 3600, User: &User{ID: "user-tok"}}, nil
	}
	cb := serve(mux, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x", nil), start.Result().Cookies())
	h.gate.cache.SetDefault("user-tok", true)

	rec := serve(mux, httptest.NewRequest(http.MethodPost, "/auth/signout", nil), cb.Result().Cookies())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, []string{"tok"}, provider.signOuts)
	assert.False(t, h.gate.cachedPremium("user-tok"))

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "peakheight_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "sign-out expires the session cookie")
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"/dashboard":          "/dashboard",
		"/checkout?plan=year": "/checkout?plan=year",
		"//evil.test":         "",
		"/\\evil.test":        "",
		"https://evil.test/":  "",
		"dashboard":           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}
