package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrNotConfigured = errors.New("operator token not configured")
)

type Claims struct {
	Subject string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// OperatorAuthenticator accepts a single static operator token. Governance
// mutations (pause, resume, replay) require it.
type OperatorAuthenticator struct {
	Token string
}

func NewOperatorAuthenticator(token string) *OperatorAuthenticator {
	return &OperatorAuthenticator{Token: strings.TrimSpace(token)}
}

func (a *OperatorAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if a == nil || a.Token == "" {
		return Claims{}, ErrNotConfigured
	}
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare([]byte(bearer), []byte(a.Token)) != 1 {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: "operator", Token: bearer}, nil
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
