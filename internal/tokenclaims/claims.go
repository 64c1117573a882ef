// Package tokenclaims decodes the self-contained claims embedded in an access
// token payload. Decoding is advisory only: no signature is checked, and the
// result is used for expiry tracking and UX, never for authorization decisions
// that matter server-side.
package tokenclaims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// Sentinel errors exposed by the decoder.
var (
	ErrMalformedToken = errors.New("tokenclaims.malformed_token")
	ErrMissingSubject = errors.New("tokenclaims.missing_subject")
	ErrMissingExpiry  = errors.New("tokenclaims.missing_expiry")
)

// Claims are the identity and expiry facts read from an access token.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the claims are expired at the given instant.
// Expiry must be strictly in the future for the claims to remain valid.
func (claims *Claims) ExpiredAt(instant time.Time) bool {
	if claims == nil {
		return true
	}
	return !claims.ExpiresAt.After(instant)
}

// Decode parses the middle segment of a three-part dot-separated token without
// verifying its signature. The email is resolved best-effort from the email,
// username, and name claims in that order.
func Decode(accessToken string) (*Claims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("tokenclaims.decode: %w", ErrMalformedToken)
	}
	payload := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, parseErr := parser.ParseUnverified(accessToken, payload); parseErr != nil {
		return nil, fmt.Errorf("tokenclaims.decode: %w", ErrMalformedToken)
	}

	subject, subjectErr := payload.GetSubject()
	if subjectErr != nil || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("tokenclaims.decode: %w", ErrMissingSubject)
	}

	expiresAt, expiryErr := payload.GetExpirationTime()
	if expiryErr != nil || expiresAt == nil {
		return nil, fmt.Errorf("tokenclaims.decode: %w", ErrMissingExpiry)
	}

	return &Claims{
		Subject:   subject,
		Email:     resolveEmail(payload),
		ExpiresAt: expiresAt.Time,
	}, nil
}

func resolveEmail(payload jwt.MapClaims) string {
	for _, claimName := range []string{"email", "username", "name"} {
		if value, ok := payload[claimName].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
