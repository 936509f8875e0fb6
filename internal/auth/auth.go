// Package auth guards the HTTP API with a single owner passcode exchanged
// for short-lived JWT bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nosqlite/internal/config"
)

// Subject is the token subject of the book owner, the only principal.
const Subject = "owner"

var ErrInvalidPasscode = errors.New("invalid passcode")

// Token is the response returned after a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims represents the JWT claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator checks passcodes and issues and verifies tokens.
type Authenticator struct {
	hash   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(cfg config.AuthConfig) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{hash: cfg.PasscodeHash, secret: []byte(cfg.JWTSecret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a passcode is configured. Without one the API is open.
func (a *Authenticator) Enabled() bool {
	return a.hash != ""
}

// Login exchanges the passcode for a signed token.
func (a *Authenticator) Login(passcode string) (*Token, error) {
	if !a.Enabled() || !CheckPasscode(passcode, a.hash) {
		return nil, ErrInvalidPasscode
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires.UTC().Truncate(time.Second)}, nil
}

// Parse validates a token and returns its claims.
func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject != Subject {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// HashPasscode hashes a plaintext passcode with bcrypt, for auth.passcode_hash.
func HashPasscode(passcode string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passcode: %w", err)
	}
	return string(hash), nil
}

// CheckPasscode compares a plaintext passcode against a bcrypt hash.
func CheckPasscode(passcode, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)) == nil
}
