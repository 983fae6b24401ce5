// Package auth verifies the bearer tokens issued by the account service.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user id in the standard subject claim.
type Claims struct {
	jwt.StandardClaims
}

// JWT signs and verifies HS256 tokens with a shared secret.
type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

// Issue signs a token for userID. Production tokens come from the account
// service; this is used by the seeder and tests.
func (j *JWT) Issue(userID uint64, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{StandardClaims: jwt.StandardClaims{
		Subject:   strconv.FormatUint(userID, 10),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Parse verifies token and returns the user id it was issued for.
func (j *JWT) Parse(token string) (uint64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by socket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return r.URL.Query().Get("token")
}
