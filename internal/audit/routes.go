package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
)

var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires audit routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
}

// GET /v1/audit/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// GET /v1/audit/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewAppError(apperrors.ErrorCodeEventNotFound, "Event not found", 404, map[string]any{
					"event_id": eventID,
				})
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filters.StartDate}, {"to", &filters.EndDate}} {
		raw := query.Get(bound.name)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid '"+bound.name+"' datetime format, expected ISO 8601", map[string]any{bound.name: raw})
		}
		*bound.dst = &parsed
	}

	if eventType := query.Get("type"); eventType != "" {
		if !isEventType(eventType) {
			return filters, apperrors.NewAppError(apperrors.ErrorCodeInvalidEventType, "invalid event type", 400, map[string]any{"type": eventType})
		}
		filters.Type = &eventType
	}

	if level := query.Get("level"); level != "" {
		parsedLevel, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"DEBUG", "INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsedLevel
	}

	if requestID := query.Get("request_id"); requestID != "" {
		filters.RequestID = &requestID
	}
	if scheduleID := query.Get("schedule_id"); scheduleID != "" {
		filters.ScheduleID = &scheduleID
	}
	if receiver := query.Get("receiver"); receiver != "" {
		filters.Receiver = &receiver
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func isEventType(value string) bool {
	for _, t := range EventTypes {
		if string(t) == value {
			return true
		}
	}
	return false
}

func formatEvent(event *AuditEvent) map[string]any {
	result := map[string]any{
		"object":    "event",
		"id":        event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":      event.Type,
		"level":     string(event.Level),
		"message":   event.Message,
	}

	correlation := map[string]any{}
	if event.RequestID != nil {
		correlation["request_id"] = *event.RequestID
	}
	if event.ScheduleID != nil {
		correlation["schedule_id"] = *event.ScheduleID
	}
	if event.TrackID != nil {
		correlation["track_id"] = *event.TrackID
	}
	if event.Receiver != nil {
		correlation["receiver"] = *event.Receiver
	}
	if len(correlation) > 0 {
		result["correlation"] = correlation
	}

	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}

	return result
}
