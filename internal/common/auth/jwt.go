// internal/common/auth/jwt.go
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal-service/internal/common/config"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// User is the identity carried in the token's "user" claim.
type User struct {
	ID       string          `json:"id"`
	UserType models.UserType `json:"userType"`
	TenantID string          `json:"tenantId,omitempty"`
	Email    string          `json:"email,omitempty"`
}

func (u User) IsCRM() bool {
	return strings.EqualFold(string(u.UserType), string(models.UserTypeCRM))
}

// Claims represents JWT claims
type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued with the shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Verify parses and validates a raw token (without the "Bearer " prefix).
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError(err.Error())
	}
	if !token.Valid {
		return nil, apperrors.NewUnauthorizedError("token is not valid")
	}
	if claims.User.ID == "" {
		return nil, apperrors.NewUnauthorizedError("token has no user id")
	}
	switch models.UserType(strings.ToUpper(string(claims.User.UserType))) {
	case models.UserTypePortal, models.UserTypeCRM:
		claims.User.UserType = models.UserType(strings.ToUpper(string(claims.User.UserType)))
	default:
		return nil, apperrors.NewUnauthorizedError(fmt.Sprintf("unknown user type %q", claims.User.UserType))
	}
	return claims, nil
}

// Sign issues a token for user. Used by tooling and tests.
func (v *Verifier) Sign(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorizedError("missing or malformed bearer token")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ==========================
// Context helpers
// ==========================

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

func WithUser(ctx context.Context, user User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}

func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
