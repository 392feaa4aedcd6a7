package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
)

type pairCompleteRequest struct {
	PairCode   string `json:"pair_code"`
	DeviceName string `json:"device_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type handlers struct {
	store  *PairingStore
	issuer *Issuer
	logger zerolog.Logger
}

// RegisterRoutes mounts pairing and token refresh under /v1/auth.
func RegisterRoutes(router chi.Router, store *PairingStore, issuer *Issuer, logger zerolog.Logger) {
	h := &handlers{
		store:  store,
		issuer: issuer,
		logger: logger.With().Str("component", "auth").Logger(),
	}
	router.Route("/v1/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/pair/start", api.Handler(h.startPairing))
		r.Method(http.MethodPost, "/pair/complete", api.Handler(h.completePairing))
		r.Method(http.MethodPost, "/refresh", api.Handler(h.refresh))
	})
}

func (h *handlers) startPairing(w http.ResponseWriter, r *http.Request) error {
	pairing, err := h.store.Start(api.GetRequestID(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("pairing code generation failed")
		return apperrors.NewInternalError("Failed to generate pairing code")
	}

	// Only the hub log shows the code, so pairing needs access to the host.
	h.logger.Warn().
		Str("request_id", pairing.RequestID).
		Str("pair_code", pairing.Code).
		Time("expires_at", pairing.ExpiresAt).
		Msg("pairing code generated, enter it on your device")

	return api.WriteAction(w, http.StatusOK, map[string]any{
		"object":       "pairing_start",
		"expires_in":   int(h.store.TTL().Seconds()),
		"pairing_hint": "Enter the pairing code printed in the hub log",
	})
}

func (h *handlers) completePairing(w http.ResponseWriter, r *http.Request) error {
	var req pairCompleteRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		return err
	}
	switch {
	case req.PairCode == "":
		return apperrors.NewValidationError("pair_code is required", nil)
	case req.DeviceName == "":
		return apperrors.NewValidationError("device_name is required", nil)
	}

	if _, err := h.store.Redeem(req.PairCode); err != nil {
		if errors.Is(err, ErrPairingExpired) {
			return apperrors.NewUnauthorizedError("Pairing code has expired", apperrors.ErrorCodeAuthPairingExpired)
		}
		return apperrors.NewUnauthorizedError("Invalid or expired pairing code", apperrors.ErrorCodeAuthPairingInvalid)
	}

	client := Principal{DeviceID: uuid.NewString(), DeviceName: req.DeviceName}
	tokens, err := h.issuer.Issue(client)
	if err != nil {
		h.logger.Error().Err(err).Msg("token issue failed")
		return apperrors.NewInternalError("Failed to generate token pair")
	}
	h.logger.Info().
		Str("device_id", client.DeviceID).
		Str("device_name", client.DeviceName).
		Msg("client paired")

	return api.WriteResource(w, http.StatusOK, map[string]any{
		"object":         "token_pair",
		"access_token":   tokens.AccessToken,
		"refresh_token":  tokens.RefreshToken,
		"expires_in_sec": tokens.ExpiresInSec,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh_token is required", nil)
	}

	access, err := h.issuer.Refresh(req.RefreshToken)
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
	case errors.Is(err, ErrTokenType):
		return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
	case err != nil:
		return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
	}

	return api.WriteResource(w, http.StatusOK, map[string]any{
		"object":         "token_refresh",
		"access_token":   access,
		"expires_in_sec": int(h.issuer.AccessTTL().Seconds()),
	})
}
