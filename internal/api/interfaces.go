package api

import (
	"context"

	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/planner"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// TripPlanner defines the itinerary operations needed by handlers.
type TripPlanner interface {
	Generate(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (trip.Itinerary, error)
	GetTrip(ctx context.Context, tripID int64) (*storage.StoredTrip, error)
	OptimizeTrip(ctx context.Context, tripID int64, start, end *geo.Point) (planner.OptimizeResult, error)
}

// DayEditor defines the single-day edit operations needed by handlers.
type DayEditor interface {
	InsertStop(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error)
	RemoveStop(ctx context.Context, tripID int64, day, placeID int) (planner.DayEdit, error)
	MoveStop(ctx context.Context, tripID int64, day, placeID, position int) (planner.DayEdit, error)
}
