package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/courierdesk/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGoogle serves the token and userinfo endpoints
func fakeGoogle(t *testing.T, email string, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "google-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "g-123",
			"email":          email,
			"verified_email": verified,
			"name":           "Pat Courier",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogle(t *testing.T, srv *httptest.Server) (*GoogleService, *StateManager) {
	t.Helper()
	sm, _ := newTestStateManager(t)
	gs := NewGoogleService(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
	}, sm)
	gs.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	gs.userInfoURL = srv.URL + "/userinfo"
	return gs, sm
}

func TestGoogleService_AuthURL(t *testing.T) {
	srv := fakeGoogle(t, "courier@example.com", true)
	gs, sm := newTestGoogle(t, srv)
	ctx := context.Background()

	raw, err := gs.AuthURL(ctx, "/courier/jobs")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "select_account", u.Query().Get("prompt"))

	returnPath, err := sm.ConsumeState(ctx, u.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "/courier/jobs", returnPath)
}

func TestGoogleService_HandleCallback(t *testing.T) {
	srv := fakeGoogle(t, "courier@example.com", true)
	gs, sm := newTestGoogle(t, srv)
	ctx := context.Background()

	require.NoError(t, sm.SaveState(ctx, "state-1", "/courier/dashboard"))

	info, returnPath, err := gs.HandleCallback(ctx, "good-code", "state-1")
	require.NoError(t, err)
	assert.Equal(t, "/courier/dashboard", returnPath)
	assert.Equal(t, "courier@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "g-123", info.ProviderUserID)
}

func TestGoogleService_HandleCallbackErrors(t *testing.T) {
	srv := fakeGoogle(t, "courier@example.com", true)
	gs, sm := newTestGoogle(t, srv)
	ctx := context.Background()

	_, _, err := gs.HandleCallback(ctx, "good-code", "never-issued")
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, sm.SaveState(ctx, "state-2", ""))
	_, _, err = gs.HandleCallback(ctx, "bad-code", "state-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange")

	// The state was consumed by the failed attempt
	_, _, err = gs.HandleCallback(ctx, "good-code", "state-2")
	assert.ErrorIs(t, err, ErrInvalidState)
}
