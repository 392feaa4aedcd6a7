// Package cast drives the Freebox client on behalf of the hub's API and
// scheduler, recording every transition in the audit log and on the event bus.
package cast

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/events"
	"github.com/strefethen/freebox-hub-go/internal/freebox"
)

// Snapshot is the public view of the client's pairing state.
type Snapshot struct {
	Object       string                    `json:"object"`
	State        freebox.State             `json:"state"`
	Descriptor   *freebox.DeviceDescriptor `json:"descriptor"`
	TrackID      *int                      `json:"track_id"`
	ReceiverName string                    `json:"receiver_name"`
}

// Service owns the process-wide Freebox client.
type Service struct {
	client    *freebox.Client
	app       freebox.AppInfo
	recorder  audit.Recorder
	publisher events.Publisher
	logger    zerolog.Logger

	// Serializes operations so that audit entries follow client transitions.
	opMu       sync.Mutex
	lastStatus freebox.AuthorizationStatus
	// tokenApp is the identity the current app token was issued to. Session
	// logins must present the same app id.
	tokenApp freebox.AppInfo
}

// NewService wraps client. app supplies the identity used for token requests
// and session logins when the caller does not override it.
func NewService(client *freebox.Client, app freebox.AppInfo, recorder audit.Recorder, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		client:    client,
		app:       app,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.With().Str("component", "cast").Logger(),
	}
}

// App returns the default application identity.
func (s *Service) App() freebox.AppInfo {
	return s.app
}

// Snapshot reports the client's current state.
func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		Object:       "freebox_state",
		State:        s.client.State(),
		Descriptor:   s.client.Descriptor(),
		ReceiverName: s.client.ReceiverName(),
	}
	if trackID := s.client.TrackID(); trackID != 0 {
		snap.TrackID = &trackID
	}
	return snap
}

// Discover locates the box.
func (s *Service) Discover(ctx context.Context) (*freebox.DeviceDescriptor, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	descriptor, err := s.client.Discover(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("freebox discovery failed")
		return nil, err
	}

	s.recorder.Record(ctx, audit.EventFreeboxDiscovered, audit.EventLevelInfo, "Freebox discovered", audit.WithPayload(map[string]any{
		"uid":         descriptor.UID,
		"device_name": descriptor.DeviceName,
		"api_version": descriptor.APIVersion,
	}))
	s.publisher.Publish(events.TypeFreeboxDiscovered, map[string]any{
		"uid":         descriptor.UID,
		"device_name": descriptor.DeviceName,
	})
	return descriptor, nil
}

// Authorize requests a new app token. Zero fields of info fall back to the
// service defaults.
func (s *Service) Authorize(ctx context.Context, info freebox.AppInfo) (*freebox.Authorization, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	info = s.withDefaults(info)
	authz, err := s.client.RequestAppToken(ctx, info)
	if err != nil {
		return nil, err
	}
	s.lastStatus = authz.Status
	s.tokenApp = info

	s.recorder.Record(ctx, audit.EventAppTokenRequested, audit.EventLevelInfo, "App token requested, confirm on the box",
		audit.WithTrackID(authz.TrackID),
		audit.WithPayload(map[string]any{"app_id": info.AppID, "device_name": info.DeviceName}),
	)
	s.publisher.Publish(events.TypeAuthorizationChanged, map[string]any{
		"track_id": authz.TrackID,
		"status":   authz.Status,
	})
	return authz, nil
}

// PollAuthorization fetches the approval state of trackID. Audit and bus
// entries are written only when the status changes.
func (s *Service) PollAuthorization(ctx context.Context, trackID int) (freebox.AuthorizationStatus, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	status, err := s.client.PollAuthorization(ctx, trackID)
	if err != nil {
		return status, err
	}
	if status == s.lastStatus {
		return status, nil
	}
	s.lastStatus = status

	level := audit.EventLevelInfo
	if status == freebox.AuthorizationDenied {
		level = audit.EventLevelWarn
	}
	s.recorder.Record(ctx, audit.EventAuthorizationChanged, level, "Authorization "+string(status),
		audit.WithTrackID(trackID),
		audit.WithPayload(map[string]any{"status": status}),
	)
	s.publisher.Publish(events.TypeAuthorizationChanged, map[string]any{
		"track_id": trackID,
		"status":   status,
	})
	return status, nil
}

// OpenSession logs in with the granted app token. An empty challenge makes
// the client fetch one.
func (s *Service) OpenSession(ctx context.Context, challenge string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	app := s.tokenApp
	if app.AppID == "" {
		app = s.app
	}
	if err := s.client.OpenSession(ctx, app.AppID, app.AppVersion, challenge); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.EventSessionOpened, audit.EventLevelInfo, "Freebox session opened", audit.WithTrackID(s.client.TrackID()))
	s.publisher.Publish(events.TypeSessionOpened, map[string]any{"track_id": s.client.TrackID()})
	return nil
}

// CloseSession logs out. Closing without a session succeeds and records nothing.
func (s *Service) CloseSession(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	hadSession := s.client.State() == freebox.StateSessionOpen
	err := s.client.CloseSession(ctx)
	if !hadSession || s.client.State() == freebox.StateSessionOpen {
		return err
	}

	level := audit.EventLevelInfo
	message := "Freebox session closed"
	if err != nil {
		level = audit.EventLevelWarn
		message = "Freebox session closed locally, logout rejected"
	}
	s.recorder.Record(ctx, audit.EventSessionClosed, level, message)
	s.publisher.Publish(events.TypeSessionClosed, nil)
	return err
}

// Receivers lists the AirMedia receivers.
func (s *Service) Receivers(ctx context.Context) ([]freebox.Receiver, error) {
	return s.client.ListReceivers(ctx)
}

// Receiver reports whether name can be driven.
func (s *Service) Receiver(ctx context.Context, name string) (freebox.ReceiverAvailability, error) {
	return s.client.FindPlayableReceiver(ctx, name)
}

// StartPlayback casts mediaURL to the configured receiver.
func (s *Service) StartPlayback(ctx context.Context, mediaURL string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	receiver := s.client.ReceiverName()
	if err := s.client.StartPlayback(ctx, mediaURL); err != nil {
		s.playbackFailed(ctx, "start", receiver, err)
		return err
	}

	s.recorder.Record(ctx, audit.EventPlaybackStarted, audit.EventLevelInfo, "Playback started",
		audit.WithReceiver(receiver),
		audit.WithPayload(map[string]any{"url": mediaURL}),
	)
	s.publisher.Publish(events.TypePlaybackStarted, map[string]any{"receiver": receiver, "url": mediaURL})
	return nil
}

// StopPlayback stops the configured receiver.
func (s *Service) StopPlayback(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	receiver := s.client.ReceiverName()
	if err := s.client.StopPlayback(ctx); err != nil {
		s.playbackFailed(ctx, "stop", receiver, err)
		return err
	}

	s.recorder.Record(ctx, audit.EventPlaybackStopped, audit.EventLevelInfo, "Playback stopped", audit.WithReceiver(receiver))
	s.publisher.Publish(events.TypePlaybackStopped, map[string]any{"receiver": receiver})
	return nil
}

// AirMediaConfig reads the box's AirMedia settings.
func (s *Service) AirMediaConfig(ctx context.Context) (*freebox.AirMediaConfig, error) {
	return s.client.AirMediaConfig(ctx)
}

// SetAirMediaConfig updates the box's AirMedia settings.
func (s *Service) SetAirMediaConfig(ctx context.Context, cfg freebox.AirMediaConfig) (*freebox.AirMediaConfig, error) {
	updated, err := s.client.SetAirMediaConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Bool("enabled", updated.Enabled).Msg("airmedia config updated")
	return updated, nil
}

func (s *Service) playbackFailed(ctx context.Context, action, receiver string, err error) {
	kind := freebox.Kind(err)
	s.logger.Warn().Err(err).Str("action", action).Str("kind", string(kind)).Msg("playback failed")
	s.recorder.Record(ctx, audit.EventPlaybackFailed, audit.EventLevelError, err.Error(),
		audit.WithReceiver(receiver),
		audit.WithPayload(map[string]any{"action": action, "kind": string(kind)}),
	)
	s.publisher.Publish(events.TypePlaybackFailed, map[string]any{
		"receiver": receiver,
		"action":   action,
		"kind":     kind,
	})
}

func (s *Service) withDefaults(info freebox.AppInfo) freebox.AppInfo {
	if info.AppID == "" {
		info.AppID = s.app.AppID
	}
	if info.AppName == "" {
		info.AppName = s.app.AppName
	}
	if info.AppVersion == "" {
		info.AppVersion = s.app.AppVersion
	}
	if info.DeviceName == "" {
		info.DeviceName = s.app.DeviceName
	}
	return info
}
