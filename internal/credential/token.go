package credential

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/theirongolddev/pburn/internal/model"
)

// Kind classifies a token by its shape.
type Kind string

const (
	KindAPIKey Kind = "api_key" // long-lived "sk-" key
	KindJWT    Kind = "jwt"     // browser session token, expires
	KindOpaque Kind = "opaque"
)

// Token is a resolved credential.
type Token struct {
	Value     string
	Source    Source
	Kind      Kind
	ExpiresAt time.Time // zero unless a JWT carries exp
}

func newToken(value string, src Source) Token {
	t := Token{Value: value, Source: src, Kind: DetectKind(value)}
	if t.Kind == KindJWT {
		t.ExpiresAt, _ = Expiry(value)
	}
	return t
}

// Expired reports whether a JWT's exp has passed at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Masked returns the token with its middle hidden.
func (t Token) Masked() string { return Mask(t.Value) }

// DetectKind guesses the token type without verifying it.
func DetectKind(value string) Kind {
	switch {
	case strings.HasPrefix(value, "sk-"):
		return KindAPIKey
	case strings.Count(value, ".") == 2:
		if _, _, err := jwt.NewParser().ParseUnverified(value, jwt.MapClaims{}); err == nil {
			return KindJWT
		}
	}
	return KindOpaque
}

// Expiry extracts the exp claim of a JWT without verifying the signature. The
// monitor never holds the signing key; this is only used to warn early.
func Expiry(value string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Mask keeps the first 6 and last 4 characters.
func Mask(value string) string {
	if len(value) <= 12 {
		return strings.Repeat("*", len(value))
	}
	return value[:6] + "..." + value[len(value)-4:]
}

// Validate rejects empty tokens, tokens with whitespace inside, and JWTs that
// have already expired at now.
func Validate(value string, now time.Time) error {
	if value == "" {
		return &model.ConfigError{Field: "api.token", Reason: "empty token"}
	}
	if strings.ContainsAny(value, " \t\r\n") {
		return &model.ConfigError{Field: "api.token", Reason: "token contains whitespace"}
	}
	if t := newToken(value, ""); t.Expired(now) {
		return &model.ConfigError{
			Field:  "api.token",
			Reason: "JWT expired at " + t.ExpiresAt.Local().Format("2006-01-02 15:04:05"),
		}
	}
	return nil
}
