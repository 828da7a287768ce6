// Package auth reads the credential token issued by the external auth
// provider. Tokens are HS256 JWTs whose subject is the backend user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johndosdos/venuechat/internal/model"
)

type ContextKey string

const IdentityKey ContextKey = "identity"

var ErrNoToken = errors.New("internal/auth: no credential token")

// Claims carries the marketplace role next to the registered claims.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// MakeJWT signs a token the way the auth provider does. The chat server only
// validates tokens; this is used by tests and local tooling.
func MakeJWT(userID model.ID, role model.Role, tokenSecret string, expiresIn time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    os.Getenv("JWT_ISS"),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	})

	return token.SignedString([]byte(tokenSecret))
}

// ValidateJWT verifies the token and returns the identity it carries. The raw
// token is kept on the identity so it can be forwarded to the backend.
func ValidateJWT(tokenString, tokenSecret string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return model.Identity{}, errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return model.Identity{}, errors.New("internal/auth: subject claim is missing")
	}

	return model.Identity{
		UserID: model.ID(claims.Subject),
		Role:   model.ParseRole(claims.Role),
		Token:  tokenString,
	}, nil
}

// ParseUnverified reads the identity from a token without checking its
// signature. Only for clients that forward the token to the backend, which
// does the verification.
func ParseUnverified(tokenString string) (model.Identity, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return model.Identity{}, fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return model.Identity{}, errors.New("internal/auth: subject claim is missing")
	}

	return model.Identity{
		UserID: model.ID(claims.Subject),
		Role:   model.ParseRole(claims.Role),
		Token:  tokenString,
	}, nil
}

// TokenFromRequest looks for the token in the "jwt" cookie first, then in a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie("jwt"); err == nil && c.Value != "" {
		return c.Value, nil
	}

	header := r.Header.Get("Authorization")
	if scheme, tok, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") && tok != "" {
		return strings.TrimSpace(tok), nil
	}

	return "", ErrNoToken
}

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func GetIdentityFromContext(ctx context.Context) (model.Identity, error) {
	id, ok := ctx.Value(IdentityKey).(model.Identity)
	if !ok || id.UserID == "" {
		return model.Identity{}, errors.New("internal/auth: identity not found in context")
	}
	return id, nil
}
