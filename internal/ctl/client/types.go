package client

// PairingStart is returned by POST /v1/auth/pair/start.
type PairingStart struct {
	ExpiresIn   int    `json:"expires_in"`
	PairingHint string `json:"pairing_hint"`
}

// TokenPair holds hub credentials.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresInSec int    `json:"expires_in_sec"`
}

// Freebox is the discovered box descriptor.
type Freebox struct {
	UID            string `json:"uid"`
	DeviceName     string `json:"device_name"`
	DeviceType     string `json:"device_type"`
	APIVersion     string `json:"api_version"`
	APIBaseURL     string `json:"api_base_url"`
	APIDomain      string `json:"api_domain"`
	HTTPSAvailable bool   `json:"https_available"`
	HTTPSPort      int    `json:"https_port"`
}

// State is the hub's view of its Freebox client.
type State struct {
	State        string   `json:"state"`
	Descriptor   *Freebox `json:"descriptor"`
	TrackID      *int     `json:"track_id"`
	ReceiverName string   `json:"receiver_name"`
}

// AppInfo overrides the identity the hub presents when requesting an app
// token. Empty fields use the hub's defaults.
type AppInfo struct {
	AppID      string `json:"app_id,omitempty"`
	AppName    string `json:"app_name,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
}

// Authorization is a pending or resolved app token request.
type Authorization struct {
	TrackID int    `json:"track_id"`
	Status  string `json:"status"`
}

// Authorization statuses reported by the hub.
const (
	AuthorizationPending = "pending"
	AuthorizationGranted = "granted"
	AuthorizationDenied  = "denied"
)

// Session is the result of opening or closing a session.
type Session struct {
	State string `json:"state"`
}

// Receiver is an AirMedia receiver.
type Receiver struct {
	Name              string          `json:"name"`
	PasswordProtected bool            `json:"password_protected"`
	Capabilities      map[string]bool `json:"capabilities"`
}

// ReceiverAvailability answers a lookup by name.
type ReceiverAvailability struct {
	Name         string `json:"name"`
	Availability string `json:"availability"`
}

// Playback is the result of a playback action.
type Playback struct {
	Action   string `json:"action"`
	Receiver string `json:"receiver"`
	URL      string `json:"url,omitempty"`
}

// AirMediaConfig is the box's AirMedia setting.
type AirMediaConfig struct {
	Enabled     bool `json:"enabled"`
	HasPassword bool `json:"has_password"`
}

// Schedule is a cron-driven playback action.
type Schedule struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Cron       string  `json:"cron"`
	Action     string  `json:"action"`
	MediaURL   *string `json:"media_url"`
	Enabled    bool    `json:"enabled"`
	LastStatus *string `json:"last_status"`
	LastRunAt  *string `json:"last_run_at"`
	NextRunAt  *string `json:"next_run_at"`
}

// CreateSchedule is the body of a schedule creation.
type CreateSchedule struct {
	Name     string  `json:"name"`
	Cron     string  `json:"cron"`
	Action   string  `json:"action"`
	MediaURL *string `json:"media_url,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// AuditEvent is one entry of the hub's audit log.
type AuditEvent struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Type        string         `json:"type"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Correlation map[string]any `json:"correlation,omitempty"`
}

// AuditQuery filters the audit log.
type AuditQuery struct {
	Type       string
	Level      string
	ScheduleID string
	Receiver   string
	From       string
	To         string
	Limit      int
}
