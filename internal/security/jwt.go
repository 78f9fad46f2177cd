package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// pendingTwoFactorExpiry bounds how long a password-authenticated session
// may wait for its two-factor code.
const pendingTwoFactorExpiry = 5 * time.Minute

// Token type claim values. Both token kinds are signed with the same secret,
// so each parser must reject the other kind by type.
const (
	tokenTypeSession          = "session"
	tokenTypePendingTwoFactor = "2fa_pending"
)

// SessionClaims defines JWT claims for a fully authenticated session.
type SessionClaims struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// PendingTwoFactorClaims defines JWT claims for the short-lived token issued
// between password verification and the two-factor challenge.
type PendingTwoFactorClaims struct {
	UserID    uint64 `json:"user_id"`
	TwoFactor bool   `json:"two_factor_pending"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// GenerateSessionToken signs a session JWT with the configured expiry.
func GenerateSessionToken(secret string, userID uint64, email, name, role string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:    userID,
		Email:     email,
		Name:      name,
		Role:      role,
		TokenType: tokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken validates a session JWT and returns its claims.
func ParseSessionToken(secret string, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeSession {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GeneratePendingTwoFactorToken signs the short-lived token that scopes a
// two-factor challenge to a password-authenticated account.
func GeneratePendingTwoFactorToken(secret string, userID uint64) (string, error) {
	now := time.Now().UTC()
	claims := PendingTwoFactorClaims{
		UserID:    userID,
		TwoFactor: true,
		TokenType: tokenTypePendingTwoFactor,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(pendingTwoFactorExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParsePendingTwoFactorToken validates a pending two-factor JWT and returns its claims.
func ParsePendingTwoFactorToken(secret string, tokenString string) (*PendingTwoFactorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PendingTwoFactorClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*PendingTwoFactorClaims)
	if !ok || !token.Valid || !claims.TwoFactor || claims.TokenType != tokenTypePendingTwoFactor {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
