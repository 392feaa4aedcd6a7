package schedule

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
)

// RegisterRoutes wires schedule routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/schedules", api.Handler(listSchedules(service)))
	router.Method(http.MethodPost, "/v1/schedules", api.Handler(createSchedule(service)))
	router.Method(http.MethodDelete, "/v1/schedules/{schedule_id}", api.Handler(deleteSchedule(service)))
}

// GET /v1/schedules
func listSchedules(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		schedules, err := service.List()
		if err != nil {
			return apperrors.NewInternalError("Failed to list schedules")
		}

		data := make([]map[string]any, 0, len(schedules))
		for i := range schedules {
			data = append(data, formatSchedule(service, &schedules[i]))
		}
		return api.WriteList(w, "/v1/schedules", data, false)
	}
}

// POST /v1/schedules
func createSchedule(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input CreateScheduleInput
		if err := api.DecodeJSON(r, &input); err != nil {
			return err
		}

		schedule, err := service.Create(r.Context(), input)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusCreated, formatSchedule(service, schedule))
	}
}

// DELETE /v1/schedules/{schedule_id}
func deleteSchedule(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		scheduleID := chi.URLParam(r, "schedule_id")

		deleted, err := service.Delete(r.Context(), scheduleID)
		if err != nil {
			return apperrors.NewInternalError("Failed to delete schedule")
		}
		if !deleted {
			return apperrors.NewAppError(apperrors.ErrorCodeScheduleNotFound, "Schedule not found", http.StatusNotFound, map[string]any{
				"schedule_id": scheduleID,
			})
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "schedule",
			"id":      scheduleID,
			"deleted": true,
		})
	}
}

func formatSchedule(service *Service, s *Schedule) map[string]any {
	result := map[string]any{
		"object":      "schedule",
		"id":          s.ScheduleID,
		"name":        s.Name,
		"cron":        s.Cron,
		"action":      s.Action,
		"media_url":   s.MediaURL,
		"enabled":     s.Enabled,
		"last_status": s.LastStatus,
		"last_run_at": nil,
		"next_run_at": nil,
		"created_at":  s.CreatedAt.Format(time.RFC3339),
		"updated_at":  s.UpdatedAt.Format(time.RFC3339),
	}
	if s.LastRunAt != nil {
		result["last_run_at"] = s.LastRunAt.Format(time.RFC3339)
	}
	if next, ok := service.NextRun(s.ScheduleID); ok {
		result["next_run_at"] = next.Format(time.RFC3339)
	}
	return result
}
