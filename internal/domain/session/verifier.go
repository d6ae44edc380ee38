package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/peakheight-api/pkg/interceptors"
)

var _ interceptors.TokenVerifier = (*RemoteVerifier)(nil)

// RemoteVerifier checks access tokens by asking the auth provider who they
// belong to. It is used when no JWT secret is configured. Answers are cached
// for a minute per token.
type RemoteVerifier struct {
	provider AuthProvider
	cache    *cache.Cache
}

func NewRemoteVerifier(provider AuthProvider) *RemoteVerifier {
	return &RemoteVerifier{provider: provider, cache: cache.New(time.Minute, 5*time.Minute)}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*interceptors.Claims, error) {
	if c, ok := v.cache.Get(token); ok {
		return c.(*interceptors.Claims), nil
	}
	u, err := v.provider.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interceptors.ErrInvalidToken, err)
	}
	if u.ID == "" {
		return nil, interceptors.ErrInvalidToken
	}
	claims := &interceptors.Claims{
		Email:            u.Email,
		UserMetadata:     u.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID},
	}
	v.cache.SetDefault(token, claims)
	return claims, nil
}
