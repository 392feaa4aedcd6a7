package events

import "time"

// Type names a hub event. Values are dotted so they map directly onto NATS
// subject tokens.
type Type string

const (
	TypeFreeboxDiscovered    Type = "freebox.discovered"
	TypeAuthorizationChanged Type = "freebox.authorization"
	TypeSessionOpened        Type = "freebox.session_opened"
	TypeSessionClosed        Type = "freebox.session_closed"
	TypePlaybackStarted      Type = "playback.started"
	TypePlaybackStopped      Type = "playback.stopped"
	TypePlaybackFailed       Type = "playback.failed"
	TypeScheduleFired        Type = "schedule.fired"
	TypePeerFound            Type = "nsd.peer_found"
	TypePeerLost             Type = "nsd.peer_lost"
)

// Event is the envelope delivered to every sink.
type Event struct {
	Object string         `json:"object"`
	Type   Type           `json:"type"`
	At     time.Time      `json:"at"`
	Data   map[string]any `json:"data,omitempty"`
}

// PingMessage is sent to websocket clients between events.
type PingMessage struct {
	Object string    `json:"object"`
	At     time.Time `json:"at"`
}
