package freebox

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Password derives the session password: lowercase hex of
// HMAC-SHA1 keyed by the raw app token over the raw challenge.
func Password(appToken, challenge string) string {
	mac := hmac.New(sha1.New, []byte(appToken))
	mac.Write([]byte(challenge))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequestAppToken registers this application on the box. The returned
// authorization stays pending until someone approves it on the device.
func (c *Client) RequestAppToken(ctx context.Context, info AppInfo) (*Authorization, error) {
	const op = "request_app_token"

	raw, err := c.call(ctx, op, http.MethodPost, "login/authorize/", info, "")
	if err != nil {
		return nil, err
	}

	var res authorizeResult
	if err := decodeResult(op, raw, &res); err != nil {
		return nil, err
	}
	if res.AppToken == "" {
		return nil, malformed(op, errors.New("missing app_token"))
	}

	c.mu.Lock()
	c.appToken = res.AppToken
	c.trackID = res.TrackID
	c.authStatus = AuthorizationPending
	c.sessionToken = ""
	c.sessionClosed = false
	c.mu.Unlock()

	c.logger.Info().Int("track_id", res.TrackID).Str("app_id", info.AppID).Msg("app token requested")

	return &Authorization{TrackID: res.TrackID, Status: AuthorizationPending}, nil
}

// PollAuthorization fetches the approval status of trackID once. Anything
// other than pending or granted is reported as Denied; request failures
// also return the error.
func (c *Client) PollAuthorization(ctx context.Context, trackID int) (AuthorizationStatus, error) {
	const op = "poll_authorization"

	raw, err := c.call(ctx, op, http.MethodGet, "login/authorize/"+strconv.Itoa(trackID), nil, "")
	if err != nil {
		if Kind(err) != KindPrecondition {
			c.recordStatus(trackID, AuthorizationDenied)
		}
		return AuthorizationDenied, err
	}

	var res authorizeStatusResult
	if err := decodeResult(op, raw, &res); err != nil {
		c.recordStatus(trackID, AuthorizationDenied)
		return AuthorizationDenied, err
	}

	status := AuthorizationDenied
	switch res.Status {
	case string(AuthorizationPending):
		status = AuthorizationPending
	case string(AuthorizationGranted):
		status = AuthorizationGranted
	default:
		c.logger.Warn().Int("track_id", trackID).Str("status", res.Status).Msg("authorization not granted")
	}

	c.recordStatus(trackID, status)
	return status, nil
}

// recordStatus updates the stored status only when trackID is the pending
// request of this client. Denied sticks until the next RequestAppToken.
func (c *Client) recordStatus(trackID int, status AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.appToken == "" || c.trackID != trackID || c.authStatus == AuthorizationDenied {
		return
	}
	c.authStatus = status
}

// OpenSession logs in with the granted app token. An empty challenge is
// fetched from the box first.
func (c *Client) OpenSession(ctx context.Context, appID, appVersion, challenge string) error {
	const op = "open_session"

	c.mu.RLock()
	appToken := c.appToken
	status := c.authStatus
	c.mu.RUnlock()

	if appToken == "" {
		return &PreconditionError{Op: op, Missing: "no app token, request one first"}
	}
	if status != AuthorizationGranted {
		return &PreconditionError{Op: op, Missing: fmt.Sprintf("app token not granted (status %s)", status)}
	}

	if challenge == "" {
		raw, err := c.call(ctx, op, http.MethodGet, "login/", nil, "")
		if err != nil {
			return err
		}
		var res challengeResult
		if err := decodeResult(op, raw, &res); err != nil {
			return err
		}
		if res.Challenge == "" {
			return malformed(op, errors.New("missing challenge"))
		}
		challenge = res.Challenge
	}

	req := sessionStartRequest{
		Password:   Password(appToken, challenge),
		AppID:      appID,
		AppVersion: appVersion,
	}
	raw, err := c.call(ctx, op, http.MethodPost, "login/session/", req, "")
	if err != nil {
		return err
	}

	var res sessionResult
	if err := decodeResult(op, raw, &res); err != nil {
		return err
	}
	if res.SessionToken == "" {
		return malformed(op, errors.New("missing session_token"))
	}

	c.mu.Lock()
	c.sessionToken = res.SessionToken
	c.sessionClosed = false
	c.mu.Unlock()

	c.logger.Info().Str("app_id", appID).Msg("session opened")
	return nil
}

// CloseSession logs out. It is a no-op without a session. Once the box has
// answered, the local token is dropped even if the answer is a failure.
func (c *Client) CloseSession(ctx context.Context) error {
	const op = "close_session"

	session := c.session()
	if session == "" {
		return nil
	}

	_, err := c.call(ctx, op, http.MethodPost, "login/logout/", nil, session)
	if err != nil && Kind(err) == KindTransport {
		return err
	}

	c.mu.Lock()
	if c.sessionToken == session {
		c.sessionToken = ""
		c.sessionClosed = true
	}
	c.mu.Unlock()

	c.logger.Info().Msg("session closed")
	return err
}
