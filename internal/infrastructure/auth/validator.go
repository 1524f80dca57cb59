package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthError codes
const (
	CodeMissing        = "missing"
	CodeExpired        = "expired"
	CodeMalformed      = "malformed"
	CodeMissingSubject = "missing_subject"
)

// AuthError represents an authentication failure
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsAuthError reports whether err is an AuthError with the given code.
func IsAuthError(err error, code string) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code == code
	}
	return false
}

// Config holds the trusted signing material and claim requirements.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Validator verifies bearer credentials. It is a pure function of the
// token, the current time, and the configured signing key, issuer, and
// audience; it is safe for concurrent use.
type Validator struct {
	config Config
}

// NewValidator creates a token validator for HS256-signed credentials.
func NewValidator(cfg Config) *Validator {
	return &Validator{config: cfg}
}

// Validate checks the credential's signature, issuer, audience, and
// expiry, and returns the subject claim as the user identifier.
func (v *Validator) Validate(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", &AuthError{Code: CodeMissing, Message: "no bearer credential supplied"}
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.config.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithAudience(v.config.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &AuthError{Code: CodeExpired, Message: "credential has expired"}
		}
		return "", &AuthError{Code: CodeMalformed, Message: "credential failed verification: " + err.Error()}
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", &AuthError{Code: CodeMalformed, Message: "credential claims are invalid"}
	}

	if claims.Subject == "" {
		return "", &AuthError{Code: CodeMissingSubject, Message: "credential has no subject claim"}
	}

	return claims.Subject, nil
}
