package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject, email string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTProviderResolvesValidToken(t *testing.T) {
	provider := NewJWTProvider("test-secret")
	token := signToken(t, "test-secret", "user-42", "alice@example.com", time.Now().Add(time.Hour))

	id, err := provider.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.UserID != "user-42" || id.Email != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if id.Anonymous() {
		t.Fatalf("expected authenticated identity")
	}
}

func TestJWTProviderFallsBackToAnonymous(t *testing.T) {
	provider := NewJWTProvider("test-secret")
	ctx := context.Background()

	cases := map[string]string{
		"empty":        "",
		"whitespace":   "   ",
		"garbage":      "not-a-token",
		"wrong secret": signToken(t, "other-secret", "user-42", "", time.Now().Add(time.Hour)),
		"expired":      signToken(t, "test-secret", "user-42", "", time.Now().Add(-time.Hour)),
		"no subject":   signToken(t, "test-secret", "", "", time.Now().Add(time.Hour)),
	}

	for name, credential := range cases {
		id, err := provider.Resolve(ctx, credential)
		if err != nil {
			t.Fatalf("%s: resolve must never error, got %v", name, err)
		}
		if !id.Anonymous() {
			t.Fatalf("%s: expected anonymous identity, got %+v", name, id)
		}
	}
}

func TestJWTProviderWithoutSecretIsAnonymousOnly(t *testing.T) {
	provider := NewJWTProvider("")
	token := signToken(t, "test-secret", "user-42", "", time.Now().Add(time.Hour))

	id, err := provider.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !id.Anonymous() {
		t.Fatalf("expected anonymous when no secret is configured, got %+v", id)
	}
}
