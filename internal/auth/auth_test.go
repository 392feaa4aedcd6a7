package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/freebox-hub-go/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		NodeEnv:                  "production",
		JWTSecret:                "0123456789abcdef0123456789abcdef",
		JWTAccessTokenExpirySec:  60,
		JWTRefreshTokenExpirySec: 600,
	}
}

var phone = Principal{DeviceID: "dev-1", DeviceName: "phone"}

func TestIssuer_IssueAndRefresh(t *testing.T) {
	issuer := NewIssuer(testConfig())
	pair, err := issuer.Issue(phone)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Equal(t, 60, pair.ExpiresInSec)

	client, err := issuer.Verify(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	require.Equal(t, phone, client)

	_, err = issuer.Verify(pair.AccessToken, KindRefresh)
	require.ErrorIs(t, err, ErrTokenType)

	access, err := issuer.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, access)
	client, err = issuer.Verify(access, KindAccess)
	require.NoError(t, err)
	require.Equal(t, phone, client)

	_, err = issuer.Refresh(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenType)

	_, err = issuer.Issue(Principal{DeviceID: "dev-2"})
	require.Error(t, err)
}

func TestIssuer_Verify(t *testing.T) {
	cfg := testConfig()
	issuer := NewIssuer(cfg)
	pair, err := issuer.Issue(phone)
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	_, err = NewIssuer(other).Verify(pair.AccessToken, KindAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = issuer.Verify("not-a-token", KindAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Verify(pair.AccessToken, KindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = issuer.Verify(pair.RefreshToken, KindRefresh)
	require.NoError(t, err)
}

func TestPairingStore(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewPairingStore(time.Minute)
	store.now = func() time.Time { return now }

	first, err := store.Start("req-1")
	require.NoError(t, err)
	require.Len(t, first.Code, 6)
	require.Equal(t, "req-1", first.RequestID)
	require.Equal(t, now.Add(time.Minute), first.ExpiresAt)

	got, err := store.Redeem(first.Code)
	require.NoError(t, err)
	require.Equal(t, first, got)
	_, err = store.Redeem(first.Code)
	require.ErrorIs(t, err, ErrPairingInvalid)

	second, err := store.Start("req-2")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = store.Redeem(second.Code)
	require.ErrorIs(t, err, ErrPairingExpired)

	_, err = store.Start("req-3")
	require.NoError(t, err)
	require.Equal(t, 1, store.Pending())
	now = now.Add(2 * time.Minute)
	store.Sweep()
	require.Zero(t, store.Pending())
}

func newRouter(t *testing.T, cfg config.Config) (*chi.Mux, *PairingStore) {
	t.Helper()
	store := NewPairingStore(time.Minute)
	issuer := NewIssuer(cfg)
	router := chi.NewRouter()
	router.Use(Middleware(cfg, issuer))
	RegisterRoutes(router, store, issuer, zerolog.Nop())
	router.Get("/v1/freebox/state", func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(principal.DeviceName))
	})
	router.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return router, store
}

func post(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPairingFlow(t *testing.T) {
	cfg := testConfig()
	router, store := newRouter(t, cfg)

	rec := post(t, router, "/v1/auth/pair/start", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.Pending())

	var code string
	for c := range store.pending {
		code = c
	}

	rec = post(t, router, "/v1/auth/pair/complete", map[string]any{"pair_code": code, "device_name": "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens struct {
		Object       string `json:"object"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.Equal(t, "token_pair", tokens.Object)

	// Codes are single use.
	rec = post(t, router, "/v1/auth/pair/complete", map[string]any{"pair_code": code, "device_name": "laptop"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "AUTH_PAIRING_INVALID")

	req := httptest.NewRequest(http.MethodGet, "/v1/freebox/state", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "laptop", rec.Body.String())

	rec = post(t, router, "/v1/auth/refresh", map[string]any{"refresh_token": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "token_refresh")
}

func TestPairComplete_Validation(t *testing.T) {
	router, _ := newRouter(t, testConfig())

	rec := post(t, router, "/v1/auth/pair/complete", map[string]any{"device_name": "laptop"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, router, "/v1/auth/pair/complete", map[string]any{"pair_code": "123456"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	router, _ := newRouter(t, cfg)
	pair, err := NewIssuer(cfg).Issue(phone)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/v1/freebox/state", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/freebox/state", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "/v1/freebox/state", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"access token", "/v1/freebox/state", "Bearer " + pair.AccessToken, http.StatusOK},
		{"query token on websocket", "/ws/events?access_token=" + pair.AccessToken, "", http.StatusNoContent},
		{"query token elsewhere", "/v1/freebox/state?access_token=" + pair.AccessToken, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_TestMode(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestMode = true
	router, _ := newRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/freebox/state", nil)
	req.Header.Set("x-test-mode", "true")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cfg.NodeEnv = "development"
	router, _ = newRouter(t, cfg)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Test Device", rec.Body.String())
}
