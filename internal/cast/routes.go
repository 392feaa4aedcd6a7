package cast

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
	"github.com/strefethen/freebox-hub-go/internal/freebox"
)

// RegisterRoutes wires the Freebox control routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodPost, "/v1/freebox/discover", handler(discover(service)))
	router.Method(http.MethodGet, "/v1/freebox/state", handler(state(service)))
	router.Method(http.MethodPost, "/v1/freebox/authorize", handler(authorize(service)))
	router.Method(http.MethodGet, "/v1/freebox/authorize/{track_id}", handler(pollAuthorization(service)))
	router.Method(http.MethodPost, "/v1/freebox/session", handler(openSession(service)))
	router.Method(http.MethodDelete, "/v1/freebox/session", handler(closeSession(service)))
	router.Method(http.MethodGet, "/v1/freebox/receivers", handler(listReceivers(service)))
	router.Method(http.MethodGet, "/v1/freebox/receivers/{name}", handler(findReceiver(service)))
	router.Method(http.MethodPost, "/v1/freebox/playback/start", handler(startPlayback(service)))
	router.Method(http.MethodPost, "/v1/freebox/playback/stop", handler(stopPlayback(service)))
	router.Method(http.MethodGet, "/v1/freebox/airmedia/config", handler(getAirMediaConfig(service)))
	router.Method(http.MethodPut, "/v1/freebox/airmedia/config", handler(setAirMediaConfig(service)))
}

// handler converts Freebox client errors before they reach api.WriteError.
func handler(fn func(w http.ResponseWriter, r *http.Request) error) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := fn(w, r); err != nil {
			return ToAppError(err)
		}
		return nil
	}
}

// POST /v1/freebox/discover
func discover(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		descriptor, err := service.Discover(r.Context())
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, formatDescriptor(descriptor))
	}
}

// GET /v1/freebox/state
func state(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, service.Snapshot())
	}
}

// POST /v1/freebox/authorize
func authorize(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body freebox.AppInfo
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}

		authz, err := service.Authorize(r.Context(), body)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusAccepted, map[string]any{
			"object":   "authorization",
			"track_id": authz.TrackID,
			"status":   authz.Status,
		})
	}
}

// GET /v1/freebox/authorize/{track_id}
func pollAuthorization(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		raw := chi.URLParam(r, "track_id")
		trackID, err := strconv.Atoi(raw)
		if err != nil || trackID <= 0 {
			return apperrors.NewValidationError("track_id must be a positive integer", map[string]any{"track_id": raw})
		}

		status, err := service.PollAuthorization(r.Context(), trackID)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":   "authorization",
			"track_id": trackID,
			"status":   status,
		})
	}
}

// POST /v1/freebox/session
func openSession(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Challenge string `json:"challenge"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}

		if err := service.OpenSession(r.Context(), body.Challenge); err != nil {
			return err
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "session",
			"state":  service.Snapshot().State,
		})
	}
}

// DELETE /v1/freebox/session
func closeSession(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.CloseSession(r.Context()); err != nil {
			return err
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "session",
			"state":  service.Snapshot().State,
		})
	}
}

// GET /v1/freebox/receivers
func listReceivers(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		receivers, err := service.Receivers(r.Context())
		if err != nil {
			return err
		}

		data := make([]map[string]any, 0, len(receivers))
		for _, receiver := range receivers {
			data = append(data, formatReceiver(receiver))
		}
		return api.WriteList(w, "/v1/freebox/receivers", data, false)
	}
}

// GET /v1/freebox/receivers/{name}
func findReceiver(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		name := chi.URLParam(r, "name")
		// chi matches on RawPath when the name carries escaped reserved
		// characters, and the parameter is then still escaped.
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(name)
			if err != nil {
				return apperrors.NewValidationError("receiver name is not a valid path segment", nil)
			}
			name = unescaped
		}

		availability, err := service.Receiver(r.Context(), name)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":       "receiver_availability",
			"name":         name,
			"availability": availability,
		})
	}
}

// POST /v1/freebox/playback/start
func startPlayback(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			URL string `json:"url"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if err := ValidateMediaURL(body.URL); err != nil {
			return err
		}

		if err := service.StartPlayback(r.Context(), body.URL); err != nil {
			return err
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":   "playback",
			"action":   "start",
			"receiver": service.Snapshot().ReceiverName,
			"url":      body.URL,
		})
	}
}

// POST /v1/freebox/playback/stop
func stopPlayback(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.StopPlayback(r.Context()); err != nil {
			return err
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":   "playback",
			"action":   "stop",
			"receiver": service.Snapshot().ReceiverName,
		})
	}
}

// GET /v1/freebox/airmedia/config
func getAirMediaConfig(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		cfg, err := service.AirMediaConfig(r.Context())
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, formatAirMediaConfig(cfg))
	}
}

// PUT /v1/freebox/airmedia/config
func setAirMediaConfig(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Enabled  *bool  `json:"enabled"`
			Password string `json:"password"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.Enabled == nil {
			return apperrors.NewValidationError("enabled is required", nil)
		}

		cfg, err := service.SetAirMediaConfig(r.Context(), freebox.AirMediaConfig{
			Enabled:  *body.Enabled,
			Password: body.Password,
		})
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, formatAirMediaConfig(cfg))
	}
}

// ValidateMediaURL accepts absolute http and https URLs only.
func ValidateMediaURL(raw string) error {
	if raw == "" {
		return apperrors.NewValidationError("url is required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return apperrors.NewValidationError("url must be an absolute http or https URL", map[string]any{"url": raw})
	}
	return nil
}

func formatDescriptor(d *freebox.DeviceDescriptor) map[string]any {
	return map[string]any{
		"object":          "freebox",
		"uid":             d.UID,
		"device_name":     d.DeviceName,
		"device_type":     d.DeviceType,
		"api_version":     d.APIVersion,
		"api_base_url":    d.APIBaseURL,
		"api_domain":      d.APIDomain,
		"https_available": d.HTTPSAvailable,
		"https_port":      d.HTTPSPort,
	}
}

func formatReceiver(r freebox.Receiver) map[string]any {
	return map[string]any{
		"object":             "receiver",
		"name":               r.Name,
		"password_protected": r.PasswordProtected,
		"capabilities": map[string]bool{
			"photo":  r.Capabilities.Photo,
			"audio":  r.Capabilities.Audio,
			"video":  r.Capabilities.Video,
			"screen": r.Capabilities.Screen,
		},
	}
}

// The AirMedia password is write-only.
func formatAirMediaConfig(cfg *freebox.AirMediaConfig) map[string]any {
	return map[string]any{
		"object":       "airmedia_config",
		"enabled":      cfg.Enabled,
		"has_password": cfg.Password != "",
	}
}
