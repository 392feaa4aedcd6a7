package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// StartPairing asks the hub to print a pairing code in its log.
func (c *Client) StartPairing(ctx context.Context) (*PairingStart, error) {
	var out PairingStart
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/pair/start", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompletePairing exchanges a pairing code for a token pair.
func (c *Client) CompletePairing(ctx context.Context, code, deviceName string) (*TokenPair, error) {
	body := map[string]string{"pair_code": code, "device_name": deviceName}
	var out TokenPair
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/pair/complete", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh mints a new access token from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var out TokenPair
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Discover makes the hub probe its configured Freebox.
func (c *Client) Discover(ctx context.Context) (*Freebox, error) {
	var out Freebox
	if err := c.doRequest(ctx, http.MethodPost, "/v1/freebox/discover", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State returns the hub's Freebox client state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var out State
	if err := c.doRequest(ctx, http.MethodGet, "/v1/freebox/state", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authorize requests an app token. The user must confirm on the box.
func (c *Client) Authorize(ctx context.Context, app AppInfo) (*Authorization, error) {
	var out Authorization
	if err := c.doRequest(ctx, http.MethodPost, "/v1/freebox/authorize", nil, app, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PollAuthorization returns the status of a pending app token request.
func (c *Client) PollAuthorization(ctx context.Context, trackID int) (*Authorization, error) {
	var out Authorization
	path := "/v1/freebox/authorize/" + strconv.Itoa(trackID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenSession logs the hub into the box. An empty challenge makes the hub
// fetch one itself.
func (c *Client) OpenSession(ctx context.Context, challenge string) (*Session, error) {
	var body any
	if challenge != "" {
		body = map[string]string{"challenge": challenge}
	}
	var out Session
	if err := c.doRequest(ctx, http.MethodPost, "/v1/freebox/session", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseSession logs the hub out of the box.
func (c *Client) CloseSession(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.doRequest(ctx, http.MethodDelete, "/v1/freebox/session", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Receivers lists the box's AirMedia receivers.
func (c *Client) Receivers(ctx context.Context) ([]Receiver, error) {
	var out ListResponse[Receiver]
	if err := c.doRequest(ctx, http.MethodGet, "/v1/freebox/receivers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Receiver reports whether the named receiver can be used.
func (c *Client) Receiver(ctx context.Context, name string) (*ReceiverAvailability, error) {
	var out ReceiverAvailability
	path := "/v1/freebox/receivers/" + url.PathEscape(name)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Play starts playback of mediaURL on the configured receiver.
func (c *Client) Play(ctx context.Context, mediaURL string) (*Playback, error) {
	var out Playback
	body := map[string]string{"url": mediaURL}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/freebox/playback/start", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop stops playback on the configured receiver.
func (c *Client) Stop(ctx context.Context) (*Playback, error) {
	var out Playback
	if err := c.doRequest(ctx, http.MethodPost, "/v1/freebox/playback/stop", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AirMediaConfig returns the box's AirMedia setting.
func (c *Client) AirMediaConfig(ctx context.Context) (*AirMediaConfig, error) {
	var out AirMediaConfig
	if err := c.doRequest(ctx, http.MethodGet, "/v1/freebox/airmedia/config", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAirMediaConfig updates the box's AirMedia setting.
func (c *Client) SetAirMediaConfig(ctx context.Context, enabled bool, password string) (*AirMediaConfig, error) {
	body := map[string]any{"enabled": enabled}
	if password != "" {
		body["password"] = password
	}
	var out AirMediaConfig
	if err := c.doRequest(ctx, http.MethodPut, "/v1/freebox/airmedia/config", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Schedules lists configured schedules.
func (c *Client) Schedules(ctx context.Context) ([]Schedule, error) {
	var out ListResponse[Schedule]
	if err := c.doRequest(ctx, http.MethodGet, "/v1/schedules", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateSchedule adds a schedule.
func (c *Client) CreateSchedule(ctx context.Context, input CreateSchedule) (*Schedule, error) {
	var out Schedule
	if err := c.doRequest(ctx, http.MethodPost, "/v1/schedules", nil, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/v1/schedules/"+url.PathEscape(id), nil, nil, nil)
}

// AuditEvents queries the audit log.
func (c *Client) AuditEvents(ctx context.Context, q AuditQuery) ([]AuditEvent, bool, error) {
	query := url.Values{}
	for key, value := range map[string]string{
		"type":        q.Type,
		"level":       q.Level,
		"schedule_id": q.ScheduleID,
		"receiver":    q.Receiver,
		"from":        q.From,
		"to":          q.To,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var out ListResponse[AuditEvent]
	if err := c.doRequest(ctx, http.MethodGet, "/v1/audit/events", query, nil, &out); err != nil {
		return nil, false, err
	}
	return out.Data, out.HasMore, nil
}
