package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/apperrors"
	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/cast"
)

// Service validates and stores schedules and keeps the runner in sync.
type Service struct {
	repo     *Repository
	runner   *Runner
	recorder audit.Recorder
	logger   zerolog.Logger
}

// NewService wires a service. runner may be nil when scheduling is disabled;
// schedules are still stored but never fire.
func NewService(repo *Repository, runner *Runner, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		recorder: recorder,
		logger:   logger.With().Str("component", "schedule").Logger(),
	}
}

// List returns all schedules.
func (s *Service) List() ([]Schedule, error) {
	return s.repo.List()
}

// Create validates input, stores it and registers it with the runner.
func (s *Service) Create(ctx context.Context, input CreateScheduleInput) (*Schedule, error) {
	if err := Validate(&input); err != nil {
		return nil, err
	}

	schedule, err := s.repo.Create(input)
	if err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}
	if s.runner != nil {
		if err := s.runner.Add(*schedule); err != nil {
			s.logger.Error().Err(err).Str("schedule_id", schedule.ScheduleID).Msg("failed to register schedule")
		}
	}

	s.recorder.Record(ctx, audit.EventScheduleCreated, audit.EventLevelInfo, "Schedule created: "+schedule.Name,
		audit.WithScheduleID(schedule.ScheduleID),
		audit.WithPayload(map[string]any{"cron": schedule.Cron, "action": string(schedule.Action)}),
	)
	return schedule, nil
}

// Delete removes a schedule. It reports false when none matched.
func (s *Service) Delete(ctx context.Context, scheduleID string) (bool, error) {
	deleted, err := s.repo.Delete(scheduleID)
	if err != nil || !deleted {
		return deleted, err
	}
	if s.runner != nil {
		s.runner.Remove(scheduleID)
	}
	s.recorder.Record(ctx, audit.EventScheduleDeleted, audit.EventLevelInfo, "Schedule deleted", audit.WithScheduleID(scheduleID))
	return true, nil
}

// NextRun returns the next activation of a schedule when the runner knows it.
func (s *Service) NextRun(scheduleID string) (time.Time, bool) {
	if s.runner == nil {
		return time.Time{}, false
	}
	return s.runner.Next(scheduleID)
}

// Validate normalizes input and checks it.
func Validate(input *CreateScheduleInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Cron = strings.TrimSpace(input.Cron)

	if input.Name == "" {
		return invalidSchedule("name is required", nil)
	}
	if input.Cron == "" {
		return invalidSchedule("cron is required", nil)
	}
	if _, err := cronParser.Parse(input.Cron); err != nil {
		return invalidSchedule("cron must be a 5-field expression", map[string]any{"cron": input.Cron, "reason": err.Error()})
	}

	switch input.Action {
	case ActionStart:
		if input.MediaURL == nil {
			return invalidSchedule("media_url is required for start", nil)
		}
		if err := cast.ValidateMediaURL(*input.MediaURL); err != nil {
			return invalidSchedule("media_url must be an absolute http or https URL", map[string]any{"media_url": *input.MediaURL})
		}
	case ActionStop:
		input.MediaURL = nil
	default:
		return invalidSchedule("action must be start or stop", map[string]any{"action": string(input.Action)})
	}
	return nil
}

func invalidSchedule(message string, details map[string]any) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeInvalidSchedule, message, 400, details)
}
