package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/db"
	"github.com/strefethen/freebox-hub-go/internal/events"
)

type fakeCaster struct {
	mu      sync.Mutex
	started []string
	stopped int
	err     error
}

func (f *fakeCaster) StartPlayback(_ context.Context, mediaURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, mediaURL)
	return f.err
}

func (f *fakeCaster) StopPlayback(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return f.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	inputs []audit.WriteEventInput
	levels []audit.EventLevel
}

func (f *fakeRecorder) Record(_ context.Context, eventType audit.EventType, level audit.EventLevel, message string, opts ...audit.EventOption) {
	input := audit.WriteEventInput{Type: string(eventType), Message: message}
	for _, opt := range opts {
		opt(&input)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	f.levels = append(f.levels, level)
}

type fixture struct {
	repo     *Repository
	runner   *Runner
	service  *Service
	caster   *fakeCaster
	recorder *fakeRecorder
	bus      *events.Bus
	router   *chi.Mux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	f := &fixture{
		repo:     NewRepository(dbPair),
		caster:   &fakeCaster{},
		recorder: &fakeRecorder{},
		bus:      events.NewBus(zerolog.Nop()),
		router:   chi.NewRouter(),
	}
	f.runner = NewRunner(f.repo, f.caster, f.recorder, f.bus, time.UTC, zerolog.Nop())
	f.service = NewService(f.repo, f.runner, f.recorder, zerolog.Nop())
	RegisterRoutes(f.router, f.service)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw := []byte(nil)
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func strPtr(s string) *string { return &s }

func TestParseCron(t *testing.T) {
	after := time.Date(2026, 5, 4, 19, 59, 0, 0, time.UTC)
	next, err := ParseCron("0 20 * * *", after, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC), next)

	_, err = ParseCron("0 0 20 * * *", after, time.UTC)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input CreateScheduleInput
		ok    bool
	}{
		{"start", CreateScheduleInput{Name: "news", Cron: "0 20 * * *", Action: ActionStart, MediaURL: strPtr("http://nas.lan/news.mp4")}, true},
		{"stop", CreateScheduleInput{Name: "bed", Cron: "@daily", Action: ActionStop}, true},
		{"missing name", CreateScheduleInput{Cron: "0 20 * * *", Action: ActionStop}, false},
		{"bad cron", CreateScheduleInput{Name: "x", Cron: "every day", Action: ActionStop}, false},
		{"seconds field", CreateScheduleInput{Name: "x", Cron: "0 0 20 * * *", Action: ActionStop}, false},
		{"bad action", CreateScheduleInput{Name: "x", Cron: "0 20 * * *", Action: "pause"}, false},
		{"start without url", CreateScheduleInput{Name: "x", Cron: "0 20 * * *", Action: ActionStart}, false},
		{"start with relative url", CreateScheduleInput{Name: "x", Cron: "0 20 * * *", Action: ActionStart, MediaURL: strPtr("/news.mp4")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			err := Validate(&input)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}

	input := CreateScheduleInput{Name: "bed", Cron: "@daily", Action: ActionStop, MediaURL: strPtr("http://x/y")}
	require.NoError(t, Validate(&input))
	require.Nil(t, input.MediaURL)
}

func TestRepository_CRUD(t *testing.T) {
	f := newFixture(t)
	f.repo.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }

	disabled := false
	first, err := f.repo.Create(CreateScheduleInput{Name: "news", Cron: "0 20 * * *", Action: ActionStart, MediaURL: strPtr("http://nas.lan/news.mp4")})
	require.NoError(t, err)
	second, err := f.repo.Create(CreateScheduleInput{Name: "off", Cron: "0 23 * * *", Action: ActionStop, Enabled: &disabled})
	require.NoError(t, err)

	require.True(t, first.Enabled)
	require.Equal(t, "http://nas.lan/news.mp4", *first.MediaURL)
	require.Nil(t, second.MediaURL)
	require.Nil(t, first.LastRunAt)

	all, err := f.repo.List()
	require.NoError(t, err)
	require.Len(t, all, 2)

	enabled, err := f.repo.ListEnabled()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, first.ScheduleID, enabled[0].ScheduleID)

	runAt := time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)
	require.NoError(t, f.repo.RecordRun(first.ScheduleID, runAt, RunStatusFailed))
	got, err := f.repo.Get(first.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, runAt, *got.LastRunAt)
	require.Equal(t, RunStatusFailed, *got.LastStatus)

	deleted, err := f.repo.Delete(first.ScheduleID)
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = f.repo.Delete(first.ScheduleID)
	require.NoError(t, err)
	require.False(t, deleted)

	got, err = f.repo.Get(first.ScheduleID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRunner_Fire(t *testing.T) {
	f := newFixture(t)
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	schedule, err := f.service.Create(context.Background(), CreateScheduleInput{
		Name: "news", Cron: "0 20 * * *", Action: ActionStart, MediaURL: strPtr("http://nas.lan/news.mp4"),
	})
	require.NoError(t, err)

	f.runner.Fire(*schedule)
	require.Equal(t, []string{"http://nas.lan/news.mp4"}, f.caster.started)

	stored, err := f.repo.Get(schedule.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, RunStatusOK, *stored.LastStatus)
	require.NotNil(t, stored.LastRunAt)

	last := f.recorder.inputs[len(f.recorder.inputs)-1]
	require.Equal(t, string(audit.EventScheduleFired), last.Type)
	require.Equal(t, schedule.ScheduleID, *last.ScheduleID)

	event := <-ch
	require.Equal(t, events.TypeScheduleFired, event.Type)
	require.Equal(t, RunStatusOK, event.Data["status"])
}

func TestRunner_FireFailureIsRecordedOnce(t *testing.T) {
	f := newFixture(t)
	f.caster.err = errors.New("freebox stop_playback: no session")

	schedule, err := f.service.Create(context.Background(), CreateScheduleInput{Name: "off", Cron: "0 23 * * *", Action: ActionStop})
	require.NoError(t, err)

	f.runner.Fire(*schedule)
	require.Equal(t, 1, f.caster.stopped)

	stored, err := f.repo.Get(schedule.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, *stored.LastStatus)
	require.Equal(t, audit.EventLevelError, f.recorder.levels[len(f.recorder.levels)-1])
	require.Equal(t, "freebox stop_playback: no session", f.recorder.inputs[len(f.recorder.inputs)-1].Payload["error"])
}

func TestRunner_StartRegistersEnabled(t *testing.T) {
	f := newFixture(t)
	disabled := false
	on, err := f.repo.Create(CreateScheduleInput{Name: "on", Cron: "0 20 * * *", Action: ActionStop})
	require.NoError(t, err)
	off, err := f.repo.Create(CreateScheduleInput{Name: "off", Cron: "0 21 * * *", Action: ActionStop, Enabled: &disabled})
	require.NoError(t, err)

	require.NoError(t, f.runner.Start())
	defer f.runner.Stop()

	_, ok := f.runner.Next(on.ScheduleID)
	require.True(t, ok)
	_, ok = f.runner.Next(off.ScheduleID)
	require.False(t, ok)

	f.runner.Remove(on.ScheduleID)
	_, ok = f.runner.Next(on.ScheduleID)
	require.False(t, ok)
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/v1/schedules", map[string]any{
		"name": "news", "cron": "0 20 * * *", "action": "start", "media_url": "http://nas.lan/news.mp4",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "schedule", body["object"])
	id := body["id"].(string)
	require.NotNil(t, body["next_run_at"])

	rec, body = f.do(t, http.MethodPost, "/v1/schedules", map[string]any{"name": "bad", "cron": "nope", "action": "stop"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_SCHEDULE", body["error"].(map[string]any)["code"])

	rec, body = f.do(t, http.MethodGet, "/v1/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["data"].([]any), 1)

	rec, body = f.do(t, http.MethodDelete, "/v1/schedules/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["deleted"])

	rec, body = f.do(t, http.MethodDelete, "/v1/schedules/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "SCHEDULE_NOT_FOUND", body["error"].(map[string]any)["code"])

	var types []string
	for _, input := range f.recorder.inputs {
		types = append(types, input.Type)
	}
	require.Equal(t, []string{string(audit.EventScheduleCreated), string(audit.EventScheduleDeleted)}, types)
}
