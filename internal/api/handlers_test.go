package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripplanner/internal/api"
	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/metrics"
	"github.com/neexbeast/tripplanner/internal/planner"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// ---- mock implementations ----

type mockPlanner struct {
	generateFn func(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (trip.Itinerary, error)
	getTripFn  func(ctx context.Context, tripID int64) (*storage.StoredTrip, error)
	optimizeFn func(ctx context.Context, tripID int64, start, end *geo.Point) (planner.OptimizeResult, error)
	insertFn   func(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error)
	removeFn   func(ctx context.Context, tripID int64, day, placeID int) (planner.DayEdit, error)
	moveFn     func(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error)
}

func (m *mockPlanner) Generate(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (trip.Itinerary, error) {
	return m.generateFn(ctx, req, pref)
}
func (m *mockPlanner) GetTrip(ctx context.Context, tripID int64) (*storage.StoredTrip, error) {
	return m.getTripFn(ctx, tripID)
}
func (m *mockPlanner) OptimizeTrip(ctx context.Context, tripID int64, start, end *geo.Point) (planner.OptimizeResult, error) {
	return m.optimizeFn(ctx, tripID, start, end)
}
func (m *mockPlanner) InsertStop(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error) {
	return m.insertFn(ctx, tripID, day, placeID, position)
}
func (m *mockPlanner) RemoveStop(ctx context.Context, tripID int64, day, placeID int) (planner.DayEdit, error) {
	return m.removeFn(ctx, tripID, day, placeID)
}
func (m *mockPlanner) MoveStop(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error) {
	return m.moveFn(ctx, tripID, day, placeID, position)
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// ---- helpers ----

const testToken = "secret-token"

func buildRouter(p *mockPlanner, db, redis *mockPinger) http.Handler {
	if p == nil {
		p = &mockPlanner{}
	}
	if db == nil {
		db = &mockPinger{}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := api.NewHandlers(p, p, log)
	if redis == nil {
		return api.NewRouter(handlers, testToken, []string{"*"}, db, nil, log)
	}
	return api.NewRouter(handlers, testToken, []string{"*"}, db, redis, log)
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func sampleItinerary() trip.Itinerary {
	return trip.Itinerary{
		TripID:           42,
		Region:           "부산",
		StartDate:        trip.NewDate(2026, time.March, 30),
		EndDate:          trip.NewDate(2026, time.March, 31),
		TotalDays:        2,
		TripSummary:      "Busan trip",
		GenerationMethod: "ai",
	}
}

// ---- POST /api/v1/itineraries ----

func TestGenerateItinerary_Success(t *testing.T) {
	var gotReq trip.TripRequest
	var gotPref *trip.Preference
	p := &mockPlanner{
		generateFn: func(_ context.Context, req trip.TripRequest, pref *trip.Preference) (trip.Itinerary, error) {
			gotReq, gotPref = req, pref
			return sampleItinerary(), nil
		},
	}

	w := do(buildRouter(p, nil, nil), http.MethodPost, "/api/v1/itineraries", `{
		"request": {
			"region": "부산",
			"start_date": "2026-03-30",
			"end_date": "2026-03-31",
			"must_visit_places": [7],
			"start_location": {"lat": 35.1, "lng": 129.0}
		},
		"preference": {"travel_pace": "relaxed", "preferred_start_time": "10:00"}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "부산", gotReq.Region)
	assert.Equal(t, trip.NewDate(2026, time.March, 30), gotReq.StartDate)
	assert.Equal(t, []int{7}, gotReq.MustVisit)
	require.NotNil(t, gotReq.StartLocation)
	assert.Equal(t, geo.Point{Lat: 35.1, Lng: 129.0}, *gotReq.StartLocation)
	require.NotNil(t, gotPref)
	assert.Equal(t, trip.PaceRelaxed, gotPref.Pace)
	assert.Equal(t, trip.At(10, 0), *gotPref.DayStart)

	var got map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, float64(42), got["trip_id"])
	assert.Equal(t, "2026-03-30", got["start_date"])
	assert.Equal(t, "ai", got["generation_method"])
}

func TestGenerateItinerary_BadBody(t *testing.T) {
	p := &mockPlanner{
		generateFn: func(context.Context, trip.TripRequest, *trip.Preference) (trip.Itinerary, error) {
			t.Fatal("planner should not be called on a bad body")
			return trip.Itinerary{}, nil
		},
	}

	w := do(buildRouter(p, nil, nil), http.MethodPost, "/api/v1/itineraries", `{"request": {"start_date": "30/03/2026"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateItinerary_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", &planner.InvalidRequestError{Reason: "region is required"}, http.StatusBadRequest},
		{"no candidates", planner.ErrNoCandidates, http.StatusUnprocessableEntity},
		{"draft unparseable", &planner.DraftUnparseableError{Attempts: 3, Err: errors.New("no json")}, http.StatusBadGateway},
		{"stage failure", &planner.StageError{Stage: planner.StagePersisting, Err: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockPlanner{
				generateFn: func(context.Context, trip.TripRequest, *trip.Preference) (trip.Itinerary, error) {
					return trip.Itinerary{}, tc.err
				},
			}

			w := do(buildRouter(p, nil, nil), http.MethodPost, "/api/v1/itineraries", `{"request": {"region": "부산"}}`)

			assert.Equal(t, tc.want, w.Code)
			assert.NotEmpty(t, errorBody(t, w))
		})
	}
}

func TestGenerateItinerary_InternalErrorIsNotLeaked(t *testing.T) {
	p := &mockPlanner{
		generateFn: func(context.Context, trip.TripRequest, *trip.Preference) (trip.Itinerary, error) {
			return trip.Itinerary{}, fmt.Errorf("persisting: %w", errors.New("password authentication failed"))
		},
	}

	w := do(buildRouter(p, nil, nil), http.MethodPost, "/api/v1/itineraries", `{"request": {}}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorBody(t, w))
}

// ---- GET /api/v1/trips/{tripID} ----

func TestGetTrip(t *testing.T) {
	p := &mockPlanner{
		getTripFn: func(_ context.Context, tripID int64) (*storage.StoredTrip, error) {
			if tripID != 42 {
				return nil, fmt.Errorf("loading trip %d: %w", tripID, storage.ErrNotFound)
			}
			return &storage.StoredTrip{ID: 42, Itinerary: sampleItinerary()}, nil
		},
	}
	router := buildRouter(p, nil, nil)

	w := do(router, http.MethodGet, "/api/v1/trips/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got storage.StoredTrip
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "Busan trip", got.Itinerary.TripSummary)

	w = do(router, http.MethodGet, "/api/v1/trips/43", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/api/v1/trips/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- POST /api/v1/trips/{tripID}/optimize ----

func TestOptimizeTrip(t *testing.T) {
	var gotStart, gotEnd *geo.Point
	p := &mockPlanner{
		optimizeFn: func(_ context.Context, tripID int64, start, end *geo.Point) (planner.OptimizeResult, error) {
			gotStart, gotEnd = start, end
			return planner.OptimizeResult{TripID: tripID, OptimizationScore: 0.87, TotalTravel: 95}, nil
		},
	}
	router := buildRouter(p, nil, nil)

	w := do(router, http.MethodPost, "/api/v1/trips/42/optimize", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotStart)
	assert.Nil(t, gotEnd)
	var got planner.OptimizeResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, planner.OptimizeResult{TripID: 42, OptimizationScore: 0.87, TotalTravel: 95}, got)

	w = do(router, http.MethodPost, "/api/v1/trips/42/optimize", `{"start_location": {"lat": 35.1, "lng": 129.04}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotStart)
	assert.Equal(t, geo.Point{Lat: 35.1, Lng: 129.04}, *gotStart)
	assert.Nil(t, gotEnd)
}

func TestOptimizeTrip_EmptyTrip(t *testing.T) {
	p := &mockPlanner{
		optimizeFn: func(context.Context, int64, *geo.Point, *geo.Point) (planner.OptimizeResult, error) {
			return planner.OptimizeResult{}, &planner.InvalidRequestError{Reason: "trip 42 has no stops to optimize"}
		},
	}

	w := do(buildRouter(p, nil, nil), http.MethodPost, "/api/v1/trips/42/optimize", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "no stops")
}

// ---- day edits ----

func TestInsertStop(t *testing.T) {
	var gotDay, gotPlace, gotPosition int
	p := &mockPlanner{
		insertFn: func(_ context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error) {
			gotDay, gotPlace, gotPosition = day, placeID, position
			if placeID == 4 {
				return planner.DayEdit{}, fmt.Errorf("place 4 is already on day 2: %w", trip.ErrDuplicateStop)
			}
			return planner.DayEdit{TripID: tripID, Day: trip.DayPlan{DayNumber: day}}, nil
		},
	}
	router := buildRouter(p, nil, nil)

	w := do(router, http.MethodPost, "/api/v1/trips/42/days/1/stops", `{"place_id": 5, "position": 2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{1, 5, 2}, []int{gotDay, gotPlace, gotPosition})

	w = do(router, http.MethodPost, "/api/v1/trips/42/days/1/stops", `{"place_id": 5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, gotPosition, 1000, "missing position appends")

	w = do(router, http.MethodPost, "/api/v1/trips/42/days/1/stops", `{"place_id": 4}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/api/v1/trips/42/days/1/stops", `{"position": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/trips/42/days/zero/stops", `{"place_id": 5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveStop(t *testing.T) {
	p := &mockPlanner{
		removeFn: func(_ context.Context, tripID int64, day, placeID int) (planner.DayEdit, error) {
			if placeID != 5 {
				return planner.DayEdit{}, fmt.Errorf("removing place %d: %w", placeID, trip.ErrStopNotFound)
			}
			return planner.DayEdit{TripID: tripID, Day: trip.DayPlan{DayNumber: day, Stops: []trip.Stop{}}}, nil
		},
	}
	router := buildRouter(p, nil, nil)

	w := do(router, http.MethodDelete, "/api/v1/trips/42/days/1/stops/5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got planner.DayEdit
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, int64(42), got.TripID)
	assert.Equal(t, 1, got.Day.DayNumber)

	w = do(router, http.MethodDelete, "/api/v1/trips/42/days/1/stops/6", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveStop(t *testing.T) {
	var gotPosition int
	p := &mockPlanner{
		moveFn: func(_ context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error) {
			gotPosition = position
			return planner.DayEdit{TripID: tripID}, nil
		},
	}
	router := buildRouter(p, nil, nil)

	w := do(router, http.MethodPut, "/api/v1/trips/42/days/1/stops/5/position", `{"position": 3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, gotPosition)

	w = do(router, http.MethodPut, "/api/v1/trips/42/days/1/stops/5/position", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- GET /api/v1/health ----

func TestHealth_OK(t *testing.T) {
	router := buildRouter(nil, &mockPinger{}, &mockPinger{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "ok", body["redis"])
}

func TestHealth_RedisDisabled(t *testing.T) {
	router := buildRouter(nil, &mockPinger{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "disabled", body["redis"])
}

func TestHealth_DBDown(t *testing.T) {
	router := buildRouter(nil,
		&mockPinger{err: fmt.Errorf("db unreachable")},
		&mockPinger{},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "error", body["db"])
	assert.Equal(t, "degraded", body["status"])
}

func TestHealth_RedisDown(t *testing.T) {
	router := buildRouter(nil,
		&mockPinger{},
		&mockPinger{err: fmt.Errorf("redis unreachable")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ---- metrics and CORS ----

func TestMetrics_ExposesRequestCounts(t *testing.T) {
	metrics.Register()
	router := buildRouter(nil, nil, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/api/v1/health",status="200"}`)
}

func TestCORS_Preflight(t *testing.T) {
	router := buildRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/itineraries", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// ---- Auth middleware ----

func TestBearerAuth_NoHeader(t *testing.T) {
	router := buildRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_WrongToken(t *testing.T) {
	router := buildRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/42", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_HealthNoAuth(t *testing.T) {
	// Health endpoint must not require auth.
	router := buildRouter(nil, &mockPinger{}, &mockPinger{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerAuth_MissingBearerPrefix(t *testing.T) {
	router := buildRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips/42", nil)
	req.Header.Set("Authorization", testToken) // no "Bearer " prefix
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
