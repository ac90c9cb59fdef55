package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/auth/login" || req["password"] != "right-password" {
			writeEnvelope(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   map[string]any{"code": "INVALID_CREDENTIALS", "message": "Invalid email or password"},
			})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token": map[string]any{"access_token": "a.b.c", "refresh_token": "d.e.f", "token_type": "Bearer"},
				"user":  map[string]any{"id": "u-1", "email": req["email"], "role": "COURIER", "status": "ACTIVE"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	res, err := c.Login(ctx, "courier@example.com", "right-password")
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", res.Token.AccessToken)
	assert.Equal(t, "courier@example.com", res.User.Email)

	_, err = c.Login(ctx, "courier@example.com", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
}

func TestClient_ErrorReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   map[string]any{"code": "ACCOUNT_NOT_ACTIVE", "message": "Account is awaiting approval", "reason": "PENDING"},
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Login(context.Background(), "pending@example.com", "pw")
	require.ErrorIs(t, err, apperrors.ErrAccountNotActive)
	appErr, _ := apperrors.As(err)
	assert.Equal(t, "PENDING", appErr.Reason)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeEnvelope(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   map[string]any{"code": "INTERNAL_ERROR", "message": "Internal server error"},
			})
			return
		}
		assert.Equal(t, "Bearer a.b.c", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"user": map[string]any{"id": "u-1", "role": "COMPANY"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetries(3, time.Millisecond))
	profile, err := c.Me(context.Background(), "a.b.c")
	require.NoError(t, err)
	assert.Equal(t, "u-1", profile.ID)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_RefreshIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"error":   map[string]any{"code": "INTERNAL_ERROR", "message": "Internal server error"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetries(3, time.Millisecond))
	_, err := c.Refresh(context.Background(), "d.e.f")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_LogoutSendsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"message": "Logged out successfully"},
		})
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL).Logout(context.Background(), "a.b.c"))
	assert.Equal(t, "Bearer a.b.c", gotAuth)
}
