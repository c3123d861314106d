package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"habitcore/internal/blob"
	"habitcore/internal/core"
	"habitcore/internal/config"
	"habitcore/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixedNow puts the effective day at 3 for protocols starting 2024-01-01.
var fixedNow = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, store domain.ProtocolStore, opts ...core.Option) http.Handler {
	t.Helper()
	base := []core.Option{
		core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })),
		core.WithLocation(time.UTC),
	}
	svc := core.NewService(store, append(base, opts...)...)
	return NewRouter(svc, WithGatherer(prometheus.NewRegistry()))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const createBody = `{
	"title": "Morning",
	"days": 5,
	"startDate": "2024-01-01",
	"dailyRoutine": [
		{"text": "Read"},
		{"text": "Stretch", "time": "07:00"}
	]
}`

func createProtocol(t *testing.T, h http.Handler) domain.Protocol {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/protocols", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[mutationResponse[domain.Protocol]](t, rec)
	require.Equal(t, "/api/protocols/"+resp.Data.ID, rec.Header().Get("Location"))
	return resp.Data
}

func TestProtocolLifecycle(t *testing.T) {
	h := newTestRouter(t, memoryStore(t))
	p := createProtocol(t, h)
	require.Len(t, p.Routine, 2)
	base := "/api/protocols/" + p.ID

	rec := do(t, h, http.MethodPost, base+"/toggle", `{"item": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	toggled := decode[mutationResponse[domain.Protocol]](t, rec).Data
	row, ok := toggled.DayProgress(3)
	require.True(t, ok)
	assert.Equal(t, []bool{true, false}, row)

	rec = do(t, h, http.MethodPut, base+"/days/4/overrides/1", `{"text": "Yoga", "time": "06:30"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[mutationResponse[domain.ResolvedItem]](t, rec).Data
	assert.Equal(t, "Yoga", resolved.Text)
	assert.Equal(t, "06:30", resolved.Time.String())

	rec = do(t, h, http.MethodGet, base+"/days/5/items/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stretch", decode[domain.ResolvedItem](t, rec).Text)

	rec = do(t, h, http.MethodPost, base+"/routine", `{"text": "Water", "time": "06:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Water", decode[mutationResponse[domain.RoutineItem]](t, rec).Data.Text)

	rec = do(t, h, http.MethodGet, base+"/agenda?pending=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	agenda := decode[core.Agenda](t, rec)
	assert.Equal(t, 3, agenda.Day)
	var texts []string
	for _, item := range agenda.Items {
		texts = append(texts, item.Text)
	}
	assert.Equal(t, []string{"Water", "Stretch"}, texts)

	rec = do(t, h, http.MethodDelete, base+"/routine/2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, base, `{"title": "Evening", "refreshTime": "04:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[mutationResponse[domain.Protocol]](t, rec).Data
	assert.Equal(t, "Evening", updated.Title)
	assert.Equal(t, domain.MustTimeOfDay("04:00"), updated.RolloverOffset)

	rec = do(t, h, http.MethodGet, base+"/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.AnalyticsSnapshot](t, rec)
	assert.Equal(t, 3, snap.EffectiveDay)
	assert.Equal(t, 5, snap.TotalDays)

	rec = do(t, h, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reset := decode[mutationResponse[domain.Protocol]](t, rec).Data
	assert.Empty(t, reset.RecordedDays())
	assert.Zero(t, reset.History().Len())

	rec = do(t, h, http.MethodGet, "/api/protocols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Protocol](t, rec), 1)

	rec = do(t, h, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmptyItemTimeMeansUnset(t *testing.T) {
	h := newTestRouter(t, memoryStore(t))
	rec := do(t, h, http.MethodPost, "/api/protocols", `{
		"title": "Evening",
		"days": 5,
		"startDate": "2024-01-01",
		"dailyRoutine": [{"text": "Read", "time": ""}, {"text": "Stretch", "time": "07:00"}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[mutationResponse[domain.Protocol]](t, rec).Data
	assert.Nil(t, p.Routine[0].Time)
	base := "/api/protocols/" + p.ID

	rec = do(t, h, http.MethodPost, base+"/routine", `{"text": "Water", "time": ""}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, decode[mutationResponse[domain.RoutineItem]](t, rec).Data.Time)

	rec = do(t, h, http.MethodPut, base+"/days/4/overrides/1", `{"text": "Yoga", "time": ""}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[mutationResponse[domain.ResolvedItem]](t, rec).Data
	assert.Equal(t, "Yoga", resolved.Text)
	require.NotNil(t, resolved.Time)
	assert.Equal(t, "07:00", resolved.Time.String())
}

func TestErrorMapping(t *testing.T) {
	h := newTestRouter(t, memoryStore(t))
	p := createProtocol(t, h)
	base := "/api/protocols/" + p.ID

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"past day", http.MethodPost, base + "/days/2/toggle", `{"item": 0}`, http.StatusConflict, "edit_forbidden"},
		{"future day", http.MethodPost, base + "/days/4/toggle", `{"item": 0}`, http.StatusConflict, "edit_forbidden"},
		{"item out of range", http.MethodPost, base + "/toggle", `{"item": 7}`, http.StatusUnprocessableEntity, "out_of_range"},
		{"day out of window", http.MethodPut, base + "/days/9/overrides/0", `{"text": "x"}`, http.StatusUnprocessableEntity, "out_of_range"},
		{"bad day", http.MethodPost, base + "/days/two/toggle", `{"item": 0}`, http.StatusBadRequest, "validation"},
		{"unknown field", http.MethodPost, base + "/toggle", `{"index": 0}`, http.StatusBadRequest, "validation"},
		{"bad create", http.MethodPost, "/api/protocols", `{"days": 0}`, http.StatusBadRequest, "validation"},
		{"bad pending", http.MethodGet, base + "/agenda?pending=maybe", "", http.StatusBadRequest, "validation"},
		{"unknown protocol", http.MethodGet, "/api/protocols/missing/analytics", "", http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode[errorBody](t, rec).Code)
		})
	}
}

func memoryStore(t *testing.T) domain.ProtocolStore {
	t.Helper()
	store, err := core.OpenPersistentStore(context.Background(), config.Storage{Driver: config.StorageMemory})
	require.NoError(t, err)
	return store
}

type failingStore struct {
	domain.ProtocolStore
	fail bool
}

func (f *failingStore) Save(ctx context.Context, p domain.Protocol) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.ProtocolStore.Save(ctx, p)
}

func TestPersistenceFailureIsUnavailable(t *testing.T) {
	store := &failingStore{ProtocolStore: memoryStore(t)}
	h := newTestRouter(t, store)
	p := createProtocol(t, h)

	store.fail = true
	rec := do(t, h, http.MethodPost, "/api/protocols/"+p.ID+"/toggle", `{"item": 0}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "persistence", decode[errorBody](t, rec).Code)

	store.fail = false
	rec = do(t, h, http.MethodGet, "/api/protocols/"+p.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Protocol](t, rec)
	assert.Empty(t, got.RecordedDays(), "failed save must leave the stored snapshot untouched")
}

func TestArchiveRoutes(t *testing.T) {
	h := newTestRouter(t, memoryStore(t), core.WithArchive(blob.NewMemory()))
	p := createProtocol(t, h)
	base := "/api/protocols/" + p.ID

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/toggle", `{"item": 1}`).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/reset", "").Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base, "").Code)

	rec := do(t, h, http.MethodGet, base+"/archives", "")
	require.Equal(t, http.StatusOK, rec.Code)
	archives := decode[[]core.ArchiveInfo](t, rec)
	require.Len(t, archives, 2)
	byReason := make(map[string]core.ArchiveInfo, len(archives))
	for _, a := range archives {
		byReason[a.Reason] = a
	}
	require.Contains(t, byReason, "reset")
	require.Contains(t, byReason, "delete")

	rec = do(t, h, http.MethodGet, "/api/archives/"+byReason["reset"].Key, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snapshot := decode[domain.Protocol](t, rec)
	row, ok := snapshot.DayProgress(3)
	require.True(t, ok)
	assert.True(t, row[1])

	rec = do(t, h, http.MethodGet, "/api/archives/protocols/nope/x.json", "")
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := core.NewInMemoryService(nil,
		core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })),
		core.WithMetricsRecorder(metrics))
	h := NewRouter(svc, WithGatherer(reg))

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	createProtocol(t, h)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "habitcore_service_operations_total"), body)
	assert.Contains(t, body, `operation="create_protocol"`)
}
