package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/api"
)

// Default configuration values
const (
	DefaultRetentionDays   = 30
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Recorder is the write side of the audit log used by other services.
type Recorder interface {
	Record(ctx context.Context, eventType EventType, level EventLevel, message string, opts ...EventOption)
}

// EventOption sets optional correlation fields on a recorded event.
type EventOption func(*WriteEventInput)

// WithScheduleID correlates the event with a cast schedule.
func WithScheduleID(id string) EventOption {
	return func(in *WriteEventInput) { in.ScheduleID = &id }
}

// WithTrackID correlates the event with an app token authorization.
func WithTrackID(id int) EventOption {
	return func(in *WriteEventInput) { in.TrackID = &id }
}

// WithReceiver correlates the event with an AirMedia receiver.
func WithReceiver(name string) EventOption {
	return func(in *WriteEventInput) { in.Receiver = &name }
}

// WithPayload attaches extra structured data.
func WithPayload(payload map[string]any) EventOption {
	return func(in *WriteEventInput) { in.Payload = payload }
}

// Service provides audit log management functionality.
type Service struct {
	logger              zerolog.Logger
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new audit service. retentionDays <= 0 selects the
// default.
func NewService(dbPair DBPair, retentionDays int, logger zerolog.Logger) *Service {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Service{
		logger:        logger.With().Str("component", "audit").Logger(),
		repo:          NewRepository(dbPair),
		retentionDays: retentionDays,
		pruneInterval: DefaultPruneInterval,
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	s.logger.Debug().
		Str("type", input.Type).
		Str("level", string(*input.Level)).
		Str("message", input.Message).
		Msg("recording audit event")

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// Record writes an event and logs instead of returning a failure, so callers
// on the playback path are never blocked by the audit log.
func (s *Service) Record(ctx context.Context, eventType EventType, level EventLevel, message string, opts ...EventOption) {
	input := WriteEventInput{
		Type:    string(eventType),
		Level:   &level,
		Message: message,
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}
	for _, opt := range opts {
		opt(&input)
	}

	if _, err := s.RecordEvent(input); err != nil {
		s.logger.Error().Err(err).Str("type", string(eventType)).Msg("audit write failed")
	}
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()
	return events, total, filters.Offset+len(events) < total, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	s.recordSuccess()

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}
	return event, nil
}

// StartPruneJob prunes once immediately, then every prune interval.
func (s *Service) StartPruneJob() {
	s.logger.Info().
		Dur("interval", s.pruneInterval).
		Int("retention_days", s.retentionDays).
		Msg("starting audit prune job")

	s.wg.Add(1)
	go s.runPruneLoop()
}

// StopPruneJob stops the background prune job. It is safe to call more than once.
func (s *Service) StopPruneJob() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	s.pruneAndLog()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pruneAndLog()
		}
	}
}

func (s *Service) pruneAndLog() {
	count, err := s.Prune()
	if err != nil {
		s.logger.Error().Err(err).Msg("audit prune failed")
		return
	}
	if count > 0 {
		s.logger.Info().Int64("deleted", count).Msg("pruned audit events")
	}
}

// Prune deletes events past retention and returns the count deleted.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy reports false after MaxConsecutiveFailures database errors in a row.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
