package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/events"
)

// DefaultFireTimeout bounds a single firing, including the receiver lookup.
const DefaultFireTimeout = 30 * time.Second

// cronParser accepts standard 5-field expressions (minute, hour,
// day-of-month, month, day-of-week) and descriptors such as @daily.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Caster is the part of the cast service a schedule drives.
type Caster interface {
	StartPlayback(ctx context.Context, mediaURL string) error
	StopPlayback(ctx context.Context) error
}

// ParseCron validates expression and returns its next activation after
// after, in loc.
func ParseCron(expression string, after time.Time, loc *time.Location) (time.Time, error) {
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched.Next(after.In(loc)), nil
}

// Runner registers enabled schedules with a cron scheduler and fires them.
// A firing is a single attempt; failures are recorded, never retried.
type Runner struct {
	repo      *Repository
	caster    Caster
	recorder  audit.Recorder
	publisher events.Publisher
	logger    zerolog.Logger
	location  *time.Location
	timeout   time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	now     func() time.Time
}

// NewRunner creates a runner evaluating expressions in loc (time.Local when nil).
func NewRunner(repo *Repository, caster Caster, recorder audit.Recorder, publisher events.Publisher, loc *time.Location, logger zerolog.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		repo:      repo,
		caster:    caster,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With().Str("component", "schedule").Logger(),
		location:  loc,
		timeout:   DefaultFireTimeout,
		cron:      cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		entries:   make(map[string]cron.EntryID),
		now:       time.Now,
	}
}

// Start loads enabled schedules and starts the cron loop.
func (r *Runner) Start() error {
	schedules, err := r.repo.ListEnabled()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for i := range schedules {
		if err := r.Add(schedules[i]); err != nil {
			r.logger.Warn().Err(err).Str("schedule_id", schedules[i].ScheduleID).Msg("skipping schedule")
		}
	}
	r.cron.Start()
	r.logger.Info().Int("schedules", len(schedules)).Str("location", r.location.String()).Msg("schedule runner started")
	return nil
}

// Stop stops the cron loop and waits for running firings.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("schedule runner stopped")
}

// Add registers a schedule. Disabled schedules are ignored.
func (r *Runner) Add(schedule Schedule) error {
	if !schedule.Enabled {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[schedule.ScheduleID]; ok {
		r.cron.Remove(existing)
	}
	entryID, err := r.cron.AddFunc(schedule.Cron, func() { r.Fire(schedule) })
	if err != nil {
		return fmt.Errorf("register schedule %s: %w", schedule.ScheduleID, err)
	}
	r.entries[schedule.ScheduleID] = entryID
	return nil
}

// Remove unregisters a schedule.
func (r *Runner) Remove(scheduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entryID, ok := r.entries[scheduleID]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, scheduleID)
	}
}

// Next returns the next activation of a registered schedule.
func (r *Runner) Next(scheduleID string) (time.Time, bool) {
	r.mu.Lock()
	entryID, ok := r.entries[scheduleID]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := r.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	next := entry.Next
	if next.IsZero() {
		// Not started yet; compute from the expression.
		next = entry.Schedule.Next(r.now().In(r.location))
	}
	return next, true
}

// Fire runs one schedule now and records the outcome.
func (r *Runner) Fire(schedule Schedule) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var err error
	switch schedule.Action {
	case ActionStart:
		mediaURL := ""
		if schedule.MediaURL != nil {
			mediaURL = *schedule.MediaURL
		}
		err = r.caster.StartPlayback(ctx, mediaURL)
	case ActionStop:
		err = r.caster.StopPlayback(ctx)
	default:
		err = fmt.Errorf("unknown action %q", schedule.Action)
	}

	status := RunStatusOK
	level := audit.EventLevelInfo
	payload := map[string]any{"action": string(schedule.Action), "status": string(RunStatusOK)}
	if err != nil {
		status = RunStatusFailed
		level = audit.EventLevelError
		payload["status"] = string(RunStatusFailed)
		payload["error"] = err.Error()
		r.logger.Warn().Err(err).Str("schedule_id", schedule.ScheduleID).Msg("schedule firing failed")
	} else {
		r.logger.Info().Str("schedule_id", schedule.ScheduleID).Str("action", string(schedule.Action)).Msg("schedule fired")
	}

	if recErr := r.repo.RecordRun(schedule.ScheduleID, r.now(), status); recErr != nil {
		r.logger.Error().Err(recErr).Str("schedule_id", schedule.ScheduleID).Msg("failed to store run outcome")
	}
	r.recorder.Record(ctx, audit.EventScheduleFired, level, "Schedule fired: "+schedule.Name,
		audit.WithScheduleID(schedule.ScheduleID),
		audit.WithPayload(payload),
	)
	r.publisher.Publish(events.TypeScheduleFired, map[string]any{
		"schedule_id": schedule.ScheduleID,
		"action":      schedule.Action,
		"status":      status,
	})
}
