package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/planner"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

const maxBodyBytes = 1 << 20

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	planner TripPlanner
	editor  DayEditor
	log     *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(planner TripPlanner, editor DayEditor, log *slog.Logger) *Handlers {
	return &Handlers{
		planner: planner,
		editor:  editor,
		log:     log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps pipeline and storage errors onto status codes. Anything
// unclassified is logged and reported as a 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *planner.InvalidRequestError
	var unparseable *planner.DraftUnparseableError

	switch {
	case errors.As(err, &invalid):
		writeErrorMessage(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, planner.ErrNoCandidates):
		writeErrorMessage(w, http.StatusUnprocessableEntity, "no places match the request; adjust the region, themes or exclusions")
	case errors.As(err, &unparseable):
		h.log.Error("draft unparseable", "path", r.URL.Path, "attempts", unparseable.Attempts, "err", err)
		writeErrorMessage(w, http.StatusBadGateway, "itinerary draft could not be generated")
	case errors.Is(err, storage.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "trip not found")
	case errors.Is(err, trip.ErrStopNotFound):
		writeErrorMessage(w, http.StatusNotFound, "stop not found in that day")
	case errors.Is(err, trip.ErrDuplicateStop):
		writeErrorMessage(w, http.StatusConflict, "place is already in the trip")
	default:
		h.log.Error("request failed", "path", r.URL.Path, "err", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON body into dst. An empty body is accepted when
// allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

func intParam(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// dayParams reads tripID and day from the path.
func dayParams(r *http.Request) (tripID int64, day int, err error) {
	if tripID, err = intParam(r, "tripID"); err != nil {
		return 0, 0, err
	}
	d, err := intParam(r, "day")
	if err != nil {
		return 0, 0, err
	}
	return tripID, int(d), nil
}

type generateRequest struct {
	Request    trip.TripRequest `json:"request"`
	Preference *trip.Preference `json:"preference,omitempty"`
}

// GenerateItinerary handles POST /api/v1/itineraries.
func (h *Handlers) GenerateItinerary(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decode(w, r, &body, false); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	it, err := h.planner.Generate(r.Context(), body.Request, body.Preference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// GetTrip handles GET /api/v1/trips/{tripID}.
func (h *Handlers) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := intParam(r, "tripID")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.planner.GetTrip(r.Context(), tripID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type optimizeRequest struct {
	StartLocation *geo.Point `json:"start_location,omitempty"`
	EndLocation   *geo.Point `json:"end_location,omitempty"`
}

// OptimizeTrip handles POST /api/v1/trips/{tripID}/optimize.
// The body is optional.
func (h *Handlers) OptimizeTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := intParam(r, "tripID")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var body optimizeRequest
	if err := decode(w, r, &body, true); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.planner.OptimizeTrip(r.Context(), tripID, body.StartLocation, body.EndLocation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type insertStopRequest struct {
	PlaceID  int `json:"place_id"`
	Position int `json:"position"`
}

// InsertStop handles POST /api/v1/trips/{tripID}/days/{day}/stops.
// A missing or zero position appends.
func (h *Handlers) InsertStop(w http.ResponseWriter, r *http.Request) {
	tripID, day, err := dayParams(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var body insertStopRequest
	if err := decode(w, r, &body, false); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.PlaceID <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "place_id is required")
		return
	}
	position := body.Position
	if position <= 0 {
		position = math.MaxInt32
	}

	h.respondEdit(w, r, func(ctx context.Context) (planner.DayEdit, error) {
		return h.editor.InsertStop(ctx, tripID, day, body.PlaceID, position)
	})
}

// RemoveStop handles DELETE /api/v1/trips/{tripID}/days/{day}/stops/{placeID}.
func (h *Handlers) RemoveStop(w http.ResponseWriter, r *http.Request) {
	tripID, day, err := dayParams(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	placeID, err := intParam(r, "placeID")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondEdit(w, r, func(ctx context.Context) (planner.DayEdit, error) {
		return h.editor.RemoveStop(ctx, tripID, day, int(placeID))
	})
}

type moveStopRequest struct {
	Position int `json:"position"`
}

// MoveStop handles PUT /api/v1/trips/{tripID}/days/{day}/stops/{placeID}/position.
func (h *Handlers) MoveStop(w http.ResponseWriter, r *http.Request) {
	tripID, day, err := dayParams(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	placeID, err := intParam(r, "placeID")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	var body moveStopRequest
	if err := decode(w, r, &body, false); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Position <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "position must be 1 or greater")
		return
	}

	h.respondEdit(w, r, func(ctx context.Context) (planner.DayEdit, error) {
		return h.editor.MoveStop(ctx, tripID, day, int(placeID), body.Position)
	})
}

func (h *Handlers) respondEdit(w http.ResponseWriter, r *http.Request, edit func(context.Context) (planner.DayEdit, error)) {
	res, err := edit(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// A nil redis reports "disabled" and does not degrade the status.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "disabled"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if redis != nil {
			redisStatus = "ok"
			if err := redis.Ping(ctx); err != nil {
				log.Error("health check: redis ping failed", "err", err)
				redisStatus = "error"
				status = http.StatusServiceUnavailable
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
