package planner

import (
	"context"
	"fmt"
	"slices"

	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/route"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// OptimizeResult is the outcome of reordering a stored trip.
type OptimizeResult struct {
	TripID            int64   `json:"trip_id"`
	OptimizationScore float64 `json:"optimization_score"`
	TotalTravel       int     `json:"total_travel_time"`
}

// DayEdit is a day after an insert, remove or move.
type DayEdit struct {
	TripID   int64          `json:"trip_id"`
	Day      trip.DayPlan   `json:"day"`
	Warnings []trip.Warning `json:"warnings,omitempty"`
}

// GetTrip returns a stored trip. Missing trips wrap storage.ErrNotFound.
func (p *Planner) GetTrip(ctx context.Context, tripID int64) (*storage.StoredTrip, error) {
	st, err := p.store.LoadTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("loading trip %d: %w", tripID, err)
	}
	return st, nil
}

// OptimizeTrip reorders every day of a stored trip and recomputes travel,
// arrival times and the optimization score. Places are neither added nor
// removed.
func (p *Planner) OptimizeTrip(ctx context.Context, tripID int64, start, end *geo.Point) (OptimizeResult, error) {
	st, err := p.GetTrip(ctx, tripID)
	if err != nil {
		return OptimizeResult{}, err
	}
	it := st.Itinerary
	it.Days = slices.Clone(it.Days)

	days := make(map[int][]trip.Stop, len(it.Days))
	total := 0
	for _, d := range it.Days {
		days[d.DayNumber] = d.Stops
		total += len(d.Stops)
	}
	if total == 0 {
		return OptimizeResult{}, invalid("trip %d has no stops to optimize", tripID)
	}

	optimized, err := p.optimizer.Optimize(ctx, days, start, end)
	if err != nil {
		return OptimizeResult{}, &StageError{Stage: StageOptimizing, Err: err}
	}

	// Distance order can pull a night-only stop into the day; it goes back
	// to the end and its new leg is looked up again.
	final := make(map[int][]trip.Stop, len(it.Days))
	warnings := 0
	it.TotalTravel = 0
	for i := range it.Days {
		d := &it.Days[i]
		stops := p.scheduler.NightLast(optimized[d.DayNumber])
		if !sameOrder(stops, optimized[d.DayNumber]) {
			if err := p.optimizer.Annotate(ctx, stops); err != nil {
				return OptimizeResult{}, &StageError{Stage: StageOptimizing, Err: err}
			}
		}
		stops, w := p.scheduler.Retime(d.DayNumber, stops, st.Preference, d.Date)
		warnings += len(w)
		final[d.DayNumber] = stops
		d.Stops = stops
		d.TotalPlaces = len(stops)
		d.TotalTravel = route.TotalTravel(stops)
		it.TotalTravel += d.TotalTravel
	}
	it.OptimizationScore = round2(route.Score(final))

	if err := p.store.SaveItinerary(ctx, tripID, it); err != nil {
		return OptimizeResult{}, &StageError{Stage: StagePersisting, Err: err}
	}

	p.log.Info("trip optimized", "trip_id", tripID, "score", it.OptimizationScore, "total_travel", it.TotalTravel, "warnings", warnings)
	return OptimizeResult{TripID: tripID, OptimizationScore: it.OptimizationScore, TotalTravel: it.TotalTravel}, nil
}

// InsertStop adds placeID to day at the 1-based position.
func (p *Planner) InsertStop(ctx context.Context, tripID int64, day, placeID, position int) (DayEdit, error) {
	return p.editDay(ctx, tripID, day, func(st *storage.StoredTrip, stops []trip.Stop) ([]trip.Stop, error) {
		for _, d := range st.Itinerary.Days {
			for _, s := range d.Stops {
				if s.ID == placeID {
					return nil, fmt.Errorf("place %d is already on day %d: %w", placeID, d.DayNumber, trip.ErrDuplicateStop)
				}
			}
		}

		places, err := p.store.GetPlaces(ctx, []int{placeID})
		if err != nil {
			return nil, &StageError{Stage: StageLoading, Err: err}
		}
		if len(places) == 0 {
			return nil, invalid("place %d does not exist", placeID)
		}

		s := trip.Stop{
			Candidate: trip.Candidate{
				Place:     places[0],
				MustVisit: slices.Contains(st.Request.MustVisit, placeID),
			},
			Reason: "added by traveller",
		}
		s.NightOnly = p.isNight(s)
		return trip.InsertStop(stops, s, position)
	})
}

// RemoveStop deletes placeID from day.
func (p *Planner) RemoveStop(ctx context.Context, tripID int64, day, placeID int) (DayEdit, error) {
	return p.editDay(ctx, tripID, day, func(_ *storage.StoredTrip, stops []trip.Stop) ([]trip.Stop, error) {
		return trip.RemoveStop(stops, placeID)
	})
}

// MoveStop moves placeID within day to the 1-based position.
func (p *Planner) MoveStop(ctx context.Context, tripID int64, day, placeID, position int) (DayEdit, error) {
	return p.editDay(ctx, tripID, day, func(_ *storage.StoredTrip, stops []trip.Stop) ([]trip.Stop, error) {
		return trip.MoveStop(stops, placeID, position)
	})
}

func sameOrder(a, b []trip.Stop) bool {
	return slices.EqualFunc(a, b, func(x, y trip.Stop) bool { return x.ID == y.ID })
}

// editDay applies fn to one day of a stored trip, then re-measures travel,
// re-times the day in its new order and saves it. Night-only stops stay last
// whatever position the edit gave them.
func (p *Planner) editDay(ctx context.Context, tripID int64, day int, fn func(*storage.StoredTrip, []trip.Stop) ([]trip.Stop, error)) (DayEdit, error) {
	st, err := p.GetTrip(ctx, tripID)
	if err != nil {
		return DayEdit{}, err
	}

	idx := slices.IndexFunc(st.Itinerary.Days, func(d trip.DayPlan) bool { return d.DayNumber == day })
	if idx < 0 {
		return DayEdit{}, invalid("trip %d has no day %d", tripID, day)
	}
	dp := st.Itinerary.Days[idx]

	stops, err := fn(st, dp.Stops)
	if err != nil {
		return DayEdit{}, err
	}
	stops = p.scheduler.NightLast(stops)
	if err := p.optimizer.Annotate(ctx, stops); err != nil {
		return DayEdit{}, &StageError{Stage: StageOptimizing, Err: err}
	}
	stops, warnings := p.scheduler.Retime(day, stops, st.Preference, dp.Date)

	dp.Stops = stops
	dp.TotalPlaces = len(stops)
	dp.TotalTravel = route.TotalTravel(stops)

	if err := p.store.SaveDay(ctx, tripID, dp); err != nil {
		return DayEdit{}, &StageError{Stage: StagePersisting, Err: err}
	}
	return DayEdit{TripID: tripID, Day: dp, Warnings: warnings}, nil
}
