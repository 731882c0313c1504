package auth

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	return path
}

func TestLoadToken(t *testing.T) {
	path := writeToken(t, "  abc123\n")

	tok, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want %q", tok, "abc123")
	}
}

func TestLoadToken_Empty(t *testing.T) {
	path := writeToken(t, "\n\t\n")

	_, err := LoadToken(path)
	if !errors.Is(err, ErrEmptyTokenFile) {
		t.Errorf("error = %v, want ErrEmptyTokenFile", err)
	}
}

func TestLoadToken_FileNotFound(t *testing.T) {
	_, err := LoadToken("/nonexistent/token")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCredentials(t *testing.T) {
	path := writeToken(t, "from-file")

	tests := []struct {
		name      string
		token     string
		path      string
		wantToken string
		wantNil   bool
	}{
		{name: "inline wins", token: "inline", path: path, wantToken: "inline"},
		{name: "file", path: path, wantToken: "from-file"},
		{name: "anonymous", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := LoadCredentials(tt.token, tt.path)
			if err != nil {
				t.Fatalf("LoadCredentials failed: %v", err)
			}
			if tt.wantNil {
				if creds != nil {
					t.Errorf("creds = %+v, want nil", creds)
				}
				return
			}
			if creds.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", creds.Token, tt.wantToken)
			}
		})
	}
}

func TestLoadCredentials_BadFile(t *testing.T) {
	if _, err := LoadCredentials("", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestCredentials_Apply(t *testing.T) {
	h := http.Header{}
	(&Credentials{Token: "secret"}).Apply(h)
	if got := h.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
	}

	var nilCreds *Credentials
	h2 := http.Header{}
	nilCreds.Apply(h2)
	if h2.Get("Authorization") != "" {
		t.Error("nil credentials set Authorization")
	}
}

func TestHandshakeHeaders(t *testing.T) {
	h := HandshakeHeaders("")
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}
	if h.Get("Authorization") != "" {
		t.Errorf("Authorization = %q, want empty", h.Get("Authorization"))
	}

	if got := HandshakeHeaders("tok").Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}
}
