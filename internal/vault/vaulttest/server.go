// Package vaulttest serves the small part of the Vault HTTP API walcheck
// uses: AppRole secret-id generation, AppRole login and secret reads.
package vaulttest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
)

// Config describes the single AppRole and the secrets the server knows.
type Config struct {
	RoleID   string
	RoleName string
	SecretID string
	// Token is issued by a successful login and required by secret reads.
	Token   string
	Secrets map[string]map[string]any
}

// Server records the requests it answered.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// NewServer starts the fake Vault; it is closed when the test ends.
func NewServer(t testing.TB, cfg Config) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/v1/")
		switch {
		case path == "auth/approle/role/"+cfg.RoleName+"/secret-id":
			reply(w, http.StatusOK, map[string]any{"data": map[string]any{"secret_id": cfg.SecretID}})
		case path == "auth/approle/login":
			var body struct {
				RoleID   string `json:"role_id"`
				SecretID string `json:"secret_id"`
			}
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, &body); err != nil || body.RoleID != cfg.RoleID || body.SecretID != cfg.SecretID {
				reply(w, http.StatusBadRequest, map[string]any{"errors": []string{"invalid role or secret ID"}})
				return
			}
			reply(w, http.StatusOK, map[string]any{"auth": map[string]any{"client_token": cfg.Token}})
		default:
			if r.Header.Get("X-Vault-Token") != cfg.Token {
				reply(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
				return
			}
			secret, ok := cfg.Secrets[path]
			if !ok {
				reply(w, http.StatusNotFound, map[string]any{"errors": []string{}})
				return
			}
			reply(w, http.StatusOK, map[string]any{"data": secret})
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func reply(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
