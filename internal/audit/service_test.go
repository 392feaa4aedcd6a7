package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/db"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return NewService(dbPair, 0, zerolog.Nop())
}

func TestService_RecordWithOptions(t *testing.T) {
	svc := setupTestService(t)
	ctx := api.WithRequestID(context.Background(), "req-9")

	svc.Record(ctx, EventAuthorizationChanged, EventLevelInfo, "authorization granted",
		WithTrackID(42), WithPayload(map[string]any{"status": "granted"}))

	events, total, hasMore, err := svc.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.False(t, hasMore)
	require.Equal(t, "req-9", *events[0].RequestID)
	require.Equal(t, 42, *events[0].TrackID)
	require.Equal(t, "granted", events[0].Payload["status"])
	require.True(t, svc.IsHealthy())
}

func TestService_GetEventNotFound(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.GetEvent("nope")
	var notFound *EventNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestService_QueryHasMore(t *testing.T) {
	svc := setupTestService(t)
	for i := 0; i < 3; i++ {
		svc.Record(context.Background(), EventPeerFound, EventLevelInfo, "peer")
	}

	events, total, hasMore, err := svc.QueryEvents(EventQueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 3, total)
	require.True(t, hasMore)
}

func TestService_PruneJobStartStop(t *testing.T) {
	svc := setupTestService(t)
	svc.StartPruneJob()
	svc.StopPruneJob()
	svc.StopPruneJob()
}

func TestRoutes(t *testing.T) {
	svc := setupTestService(t)
	svc.Record(context.Background(), EventScheduleFired, EventLevelInfo, "fired", WithScheduleID("sch_1"))

	router := chi.NewRouter()
	RegisterRoutes(router, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events?type=SCHEDULE_FIRED&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Object string           `json:"object"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	id := list.Data[0]["id"].(string)
	require.Equal(t, "sch_1", list.Data[0]["correlation"].(map[string]any)["schedule_id"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "EVENT_NOT_FOUND")
}

func TestRoutes_Validation(t *testing.T) {
	svc := setupTestService(t)
	router := chi.NewRouter()
	RegisterRoutes(router, svc)

	for _, query := range []string{"type=ROUTINE_CREATED", "level=LOUD", "limit=0", "offset=-1", "from=yesterday"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/audit/events?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
