// Package auth provides event hub authentication using bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrEmptyTokenFile is returned when a token file holds no token.
var ErrEmptyTokenFile = errors.New("token file is empty")

// Credentials holds the token presented during the WebSocket handshake.
type Credentials struct {
	Token string
}

// LoadCredentials resolves the hub token. An inline token wins over
// tokenPath; with neither, the connection is anonymous and nil is returned.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token != "" {
		return &Credentials{Token: token}, nil
	}
	if tokenPath == "" {
		return nil, nil
	}

	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Credentials{Token: tok}, nil
}

// LoadToken reads a token from a file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyTokenFile)
	}
	return tok, nil
}

// Apply sets the Authorization header. A nil receiver or empty token leaves
// h untouched.
func (c *Credentials) Apply(h http.Header) {
	if c == nil || c.Token == "" {
		return
	}
	h.Set("Authorization", "Bearer "+c.Token)
}

// HandshakeHeaders returns the headers sent when dialing the hub.
func HandshakeHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	(&Credentials{Token: token}).Apply(h)
	return h
}
