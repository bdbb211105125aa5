package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kindertrack/auth-identity/internal/model"
)

// Claims is the access-token payload. Validity is fully determined by the
// signature and expiry; no server-side state is consulted.
type Claims struct {
	UserID   string     `json:"user_id"`
	Role     model.Role `json:"role"`
	SchoolID *string    `json:"school_id,omitempty"`
	jwt.RegisteredClaims
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	// jti makes every issuance distinct; iat/exp alone only have
	// second granularity.
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if _, ok := model.ParseRole(string(claims.Role)); !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// FailureKind classifies a ParseToken error for audit logging. Callers on the
// wire collapse every kind into a single unauthenticated outcome.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	default:
		return "malformed"
	}
}
