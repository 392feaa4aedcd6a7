package schedule

import "time"

// Action is what a schedule does to the configured receiver when it fires.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// RunStatus is the outcome of the last firing.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// Schedule is a stored cast schedule.
type Schedule struct {
	ScheduleID string     `json:"schedule_id"`
	Name       string     `json:"name"`
	Cron       string     `json:"cron"`
	Action     Action     `json:"action"`
	MediaURL   *string    `json:"media_url"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at"`
	LastStatus *RunStatus `json:"last_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CreateScheduleInput is the body of POST /v1/schedules.
type CreateScheduleInput struct {
	Name     string  `json:"name"`
	Cron     string  `json:"cron"`
	Action   Action  `json:"action"`
	MediaURL *string `json:"media_url"`
	Enabled  *bool   `json:"enabled"`
}
