package freebox

import "encoding/json"

// DeviceDescriptor is the unauthenticated answer of /api_version.
type DeviceDescriptor struct {
	UID            string `json:"uid"`
	DeviceName     string `json:"device_name"`
	APIVersion     string `json:"api_version"`
	APIBaseURL     string `json:"api_base_url"`
	DeviceType     string `json:"device_type"`
	APIDomain      string `json:"api_domain"`
	HTTPSAvailable bool   `json:"https_available"`
	HTTPSPort      int    `json:"https_port"`
}

// AppInfo identifies this application to the box when requesting an app token.
type AppInfo struct {
	AppID      string `json:"app_id"`
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	DeviceName string `json:"device_name"`
}

// Authorization is the outcome of a successful app token request.
type Authorization struct {
	TrackID int                 `json:"track_id"`
	Status  AuthorizationStatus `json:"status"`
}

// AuthorizationStatus is the approval state of a pending app token.
type AuthorizationStatus string

const (
	AuthorizationPending AuthorizationStatus = "pending"
	AuthorizationGranted AuthorizationStatus = "granted"
	AuthorizationDenied  AuthorizationStatus = "denied"
)

// Capabilities lists the media kinds an AirMedia receiver accepts.
type Capabilities struct {
	Photo  bool `json:"photo"`
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

// Receiver is an AirMedia playback target advertised by the box.
type Receiver struct {
	Name              string       `json:"name"`
	PasswordProtected bool         `json:"password_protected"`
	Capabilities      Capabilities `json:"capabilities"`
}

// ReceiverAvailability tells whether a named receiver can be driven by this client.
type ReceiverAvailability string

const (
	ReceiverAvailable         ReceiverAvailability = "available"
	ReceiverPasswordProtected ReceiverAvailability = "password_protected"
	ReceiverNotFound          ReceiverAvailability = "not_found"
)

// AirMediaConfig is the box-side AirMedia settings block.
type AirMediaConfig struct {
	Enabled  bool   `json:"enabled"`
	Password string `json:"password,omitempty"`
}

// envelope is the common shape of every API response.
type envelope struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Msg       string          `json:"msg"`
	ErrorCode string          `json:"error_code"`
}

type authorizeResult struct {
	AppToken string `json:"app_token"`
	TrackID  int    `json:"track_id"`
}

type authorizeStatusResult struct {
	Status    string `json:"status"`
	Challenge string `json:"challenge"`
}

type challengeResult struct {
	LoggedIn  bool   `json:"logged_in"`
	Challenge string `json:"challenge"`
}

type sessionResult struct {
	SessionToken string `json:"session_token"`
	Challenge    string `json:"challenge"`
}

type sessionStartRequest struct {
	Password   string `json:"password"`
	AppID      string `json:"app_id"`
	AppVersion string `json:"app_version"`
}

type receiverRequest struct {
	Action    string `json:"action"`
	MediaType string `json:"media_type"`
	Media     string `json:"media,omitempty"`
}
