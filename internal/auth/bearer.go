package auth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

// ErrMissingCredential is returned when the Authorization value is absent or
// does not carry exactly one bearer token.
var ErrMissingCredential = errors.New("missing bearer credential")

// ParseBearer extracts the credential from an Authorization header value of
// the form "Bearer <credential>".
func ParseBearer(header string) (string, error) {
	rest, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", ErrMissingCredential
	}
	credential := strings.TrimSpace(rest)
	if credential == "" || strings.ContainsAny(credential, " \t") {
		return "", ErrMissingCredential
	}
	return credential, nil
}

// BearerToken formats credential as an Authorization header value.
func BearerToken(credential string) string {
	return bearerPrefix + credential
}
