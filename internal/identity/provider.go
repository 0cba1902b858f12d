package identity

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-room-service/internal/domain"
)

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTProvider verifies HMAC-signed bearer tokens issued by the auth service.
// A missing or unverifiable token resolves to the anonymous identity, never
// an error: guests are first-class participants.
type JWTProvider struct {
	secret []byte
	now    func() time.Time
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), now: time.Now}
}

func (p *JWTProvider) Resolve(_ context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" || len(p.secret) == 0 {
		return domain.Identity{}, nil
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || claims.Subject == "" {
		return domain.Identity{}, nil
	}

	return domain.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// StaticProvider maps raw credentials to identities (useful for tests/demos).
type StaticProvider struct {
	identities map[string]domain.Identity
}

func NewStaticProvider(identities map[string]domain.Identity) *StaticProvider {
	return &StaticProvider{identities: identities}
}

func (p *StaticProvider) Resolve(_ context.Context, credential string) (domain.Identity, error) {
	if id, ok := p.identities[credential]; ok {
		return id, nil
	}
	return domain.Identity{}, nil
}
