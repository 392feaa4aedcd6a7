package audit

import "time"

// EventType represents the type of audit event.
type EventType string

const (
	EventFreeboxDiscovered    EventType = "FREEBOX_DISCOVERED"
	EventAppTokenRequested    EventType = "APP_TOKEN_REQUESTED"
	EventAuthorizationChanged EventType = "AUTHORIZATION_CHANGED"
	EventSessionOpened        EventType = "SESSION_OPENED"
	EventSessionClosed        EventType = "SESSION_CLOSED"
	EventPlaybackStarted      EventType = "PLAYBACK_STARTED"
	EventPlaybackStopped      EventType = "PLAYBACK_STOPPED"
	EventPlaybackFailed       EventType = "PLAYBACK_FAILED"
	EventScheduleCreated      EventType = "SCHEDULE_CREATED"
	EventScheduleDeleted      EventType = "SCHEDULE_DELETED"
	EventScheduleFired        EventType = "SCHEDULE_FIRED"
	EventPeerFound            EventType = "PEER_FOUND"
	EventPeerLost             EventType = "PEER_LOST"
	EventSystemStartup        EventType = "SYSTEM_STARTUP"
	EventSystemError          EventType = "SYSTEM_ERROR"
)

// EventTypes lists every recordable type.
var EventTypes = []EventType{
	EventFreeboxDiscovered,
	EventAppTokenRequested,
	EventAuthorizationChanged,
	EventSessionOpened,
	EventSessionClosed,
	EventPlaybackStarted,
	EventPlaybackStopped,
	EventPlaybackFailed,
	EventScheduleCreated,
	EventScheduleDeleted,
	EventScheduleFired,
	EventPeerFound,
	EventPeerLost,
	EventSystemStartup,
	EventSystemError,
}

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID    string         `json:"event_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`
	Level      EventLevel     `json:"level"`
	RequestID  *string        `json:"request_id,omitempty"`
	ScheduleID *string        `json:"schedule_id,omitempty"`
	TrackID    *int           `json:"track_id,omitempty"`
	Receiver   *string        `json:"receiver,omitempty"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type       string
	Level      *EventLevel
	RequestID  *string
	ScheduleID *string
	TrackID    *int
	Receiver   *string
	Message    string
	Payload    map[string]any
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type       *string
	Level      *EventLevel
	StartDate  *time.Time
	EndDate    *time.Time
	RequestID  *string
	ScheduleID *string
	Receiver   *string
	Limit      int
	Offset     int
}
