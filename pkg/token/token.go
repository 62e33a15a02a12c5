package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims structure for the backend's JWT claims
type Claims struct {
	MemberID string `json:"user_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var (
	// ErrEmptyToken token string is empty
	ErrEmptyToken = errors.New("empty token")
	// ErrTokenExpired token exp claim is in the past
	ErrTokenExpired = errors.New("token expired")
)

// 客戶端沒有簽章金鑰, 只解析 claims, 簽章由後端驗證
var parser = jwt.NewParser()

// ParseUnverified parses a JWT without verifying the signature and extracts the Claims
func ParseUnverified(tokenStr string) (*Claims, error) {
	tokenStr = StripBearer(tokenStr)
	if tokenStr == "" {
		return nil, ErrEmptyToken
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// CheckNotExpired returns ErrTokenExpired when the exp claim is before now.
// Tokens without exp never expire on the client side.
func CheckNotExpired(claims *Claims, now time.Time) error {
	if claims.ExpiresAt == nil {
		return nil
	}
	if !claims.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	return nil
}

// SenderID returns the member id carried by the token, falling back to sub
func (c *Claims) SenderID() string {
	if c.MemberID != "" {
		return c.MemberID
	}
	return c.Subject
}

// StripBearer removes a leading "Bearer " from t
func StripBearer(t string) string {
	t = strings.TrimSpace(t)
	if len(t) >= 7 && strings.EqualFold(t[:7], "Bearer ") {
		return strings.TrimSpace(t[7:])
	}
	return t
}

// BearerHeader formats t as an Authorization header value
func BearerHeader(t string) string {
	return "Bearer " + StripBearer(t)
}

// GenerateJWT generates an HS256 JWT token
func GenerateJWT(memberID, issuer string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		MemberID: memberID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
