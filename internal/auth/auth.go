// Package auth issues and validates the JWT session tokens carried by
// browser clients, either as a bearer header or the session cookie.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie set on login.
const CookieName = "mycalendar_session"

// Config holds signing parameters for session tokens.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims represents the payload extracted from a session JWT.
type Claims struct {
	Subject     string
	SessionID   string
	DisplayName string
	ExpiresAt   time.Time
}

// ErrMissingToken is returned when no session token accompanies the request.
var ErrMissingToken = errors.New("missing session token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid session token")

// Issue signs a session token binding the server-side session id.
func Issue(cfg Config, sessionID, subject, displayName string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  cfg.Issuer,
		"sub":  subject,
		"sid":  sessionID,
		"name": displayName,
		"iat":  now.Unix(),
		"exp":  now.Add(cfg.TTL).Unix(),
	})
	return token.SignedString([]byte(cfg.Secret))
}

// Parse validates a session JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	sessionID, _ := claims["sid"].(string)
	if subject == "" || sessionID == "" {
		return nil, ErrInvalidToken
	}
	displayName, _ := claims["name"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:     subject,
		SessionID:   sessionID,
		DisplayName: displayName,
		ExpiresAt:   exp.Time,
	}, nil
}
