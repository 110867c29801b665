package planner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripplanner/internal/planner"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

func storedStop(p trip.Place, stay int) trip.Stop {
	return trip.Stop{Candidate: trip.Candidate{Place: p}, StayMinutes: stay}
}

// storedTrip is a two-day trip: day 1 holds places 1 and 2, day 2 holds place 4.
func storedTrip() *storage.StoredTrip {
	places := busanPlaces()
	req := busanRequest()
	req.MustVisit = []int{5}
	return &storage.StoredTrip{
		ID:      7,
		Request: req,
		Itinerary: trip.Itinerary{
			TripID:      7,
			TripSummary: "kept",
			Days: []trip.DayPlan{
				{DayNumber: 1, Date: monday, Stops: []trip.Stop{storedStop(places[0], 90), storedStop(places[1], 90)}},
				{DayNumber: 2, Date: monday.AddDays(1), Stops: []trip.Stop{storedStop(places[3], 60)}},
			},
		},
	}
}

func editStore(rec *recorder, st *storage.StoredTrip) *mockStore {
	store := fixtureStore(rec)
	store.loadFn = func(_ context.Context, tripID int64) (*storage.StoredTrip, error) {
		if st == nil || tripID != st.ID {
			return nil, storage.ErrNotFound
		}
		return st, nil
	}
	return store
}

func arrivals(stops []trip.Stop) []trip.Clock {
	out := make([]trip.Clock, len(stops))
	for i, s := range stops {
		if s.ArrivalTime != nil {
			out[i] = *s.ArrivalTime
		}
	}
	return out
}

func TestInsertStop(t *testing.T) {
	rec := &recorder{}
	p := newPlanner(editStore(rec, storedTrip()), fixedDraft())

	edit, err := p.InsertStop(context.Background(), 7, 1, 5, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(7), edit.TripID)
	assert.Equal(t, []int{1, 5, 2}, stopIDs(edit.Day.Stops))
	assert.Equal(t, []trip.Clock{trip.At(9, 0), trip.At(10, 50), trip.At(11, 55)}, arrivals(edit.Day.Stops))
	assert.True(t, edit.Day.Stops[1].MustVisit)
	assert.Equal(t, 45, edit.Day.Stops[1].StayMinutes)
	assert.Equal(t, 3, edit.Day.TotalPlaces)
	assert.Equal(t, 10, edit.Day.TotalTravel)
	assert.Empty(t, edit.Warnings)

	require.Len(t, rec.days, 1)
	assert.Equal(t, edit.Day, rec.days[0])
}

func TestInsertStop_PlaceAlreadyInTrip(t *testing.T) {
	rec := &recorder{}
	p := newPlanner(editStore(rec, storedTrip()), fixedDraft())

	_, err := p.InsertStop(context.Background(), 7, 1, 4, 1)

	assert.ErrorIs(t, err, trip.ErrDuplicateStop)
	assert.Empty(t, rec.days)
}

func TestInsertStop_UnknownPlace(t *testing.T) {
	p := newPlanner(editStore(&recorder{}, storedTrip()), fixedDraft())

	_, err := p.InsertStop(context.Background(), 7, 1, 99, 1)

	var invalid *planner.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
}

func TestRemoveStop(t *testing.T) {
	rec := &recorder{}
	p := newPlanner(editStore(rec, storedTrip()), fixedDraft())

	edit, err := p.RemoveStop(context.Background(), 7, 1, 1)
	require.NoError(t, err)

	require.Equal(t, []int{2}, stopIDs(edit.Day.Stops))
	first := edit.Day.Stops[0]
	assert.Nil(t, first.TravelMinutes)
	assert.Equal(t, 1, first.OrderIndex)
	assert.Equal(t, trip.At(9, 0), *first.ArrivalTime)
	assert.Len(t, rec.days, 1)
}

func TestMoveStop(t *testing.T) {
	p := newPlanner(editStore(&recorder{}, storedTrip()), fixedDraft())

	edit, err := p.MoveStop(context.Background(), 7, 1, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, stopIDs(edit.Day.Stops))
	assert.Equal(t, []trip.Clock{trip.At(9, 0), trip.At(10, 50)}, arrivals(edit.Day.Stops))
	require.NotNil(t, edit.Day.Stops[1].TravelMinutes)
	assert.Equal(t, 5, *edit.Day.Stops[1].TravelMinutes)
}

func TestEditDay_Errors(t *testing.T) {
	rec := &recorder{}
	p := newPlanner(editStore(rec, storedTrip()), fixedDraft())
	ctx := context.Background()

	_, err := p.RemoveStop(ctx, 7, 1, 9)
	assert.ErrorIs(t, err, trip.ErrStopNotFound)

	_, err = p.MoveStop(ctx, 7, 3, 1, 1)
	var invalid *planner.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	_, err = p.RemoveStop(ctx, 8, 1, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Empty(t, rec.days)
}

func TestOptimizeTrip(t *testing.T) {
	at := func(id int, lng float64) trip.Stop {
		return storedStop(trip.Place{ID: id, Category: trip.CategorySightseeing, Latitude: 35.10, Longitude: lng}, 60)
	}
	st := storedTrip()
	st.Itinerary.Days[0].Stops = []trip.Stop{at(1, 129.00), at(3, 129.02), at(2, 129.01), at(4, 129.03)}
	st.Itinerary.Days[1].Stops = []trip.Stop{}

	rec := &recorder{}
	res, err := newPlanner(editStore(rec, st), fixedDraft()).OptimizeTrip(context.Background(), 7, nil, nil)
	require.NoError(t, err)

	require.NotNil(t, rec.saved)
	saved := *rec.saved
	day := saved.Days[0]
	assert.Equal(t, []int{1, 2, 3, 4}, stopIDs(day.Stops))
	for i, s := range day.Stops {
		assert.Equal(t, i+1, s.OrderIndex)
		if i > 0 {
			assert.Greater(t, *s.ArrivalTime, *day.Stops[i-1].ArrivalTime)
		}
	}

	assert.Equal(t, int64(7), res.TripID)
	assert.Equal(t, 1.0, res.OptimizationScore)
	assert.Positive(t, res.TotalTravel)
	assert.Equal(t, res.TotalTravel, saved.TotalTravel)
	assert.Equal(t, day.TotalTravel, saved.TotalTravel)
	assert.Equal(t, "kept", saved.TripSummary)
}

func TestOptimizeTrip_EmptyTrip(t *testing.T) {
	st := storedTrip()
	for i := range st.Itinerary.Days {
		st.Itinerary.Days[i].Stops = []trip.Stop{}
	}
	rec := &recorder{}

	_, err := newPlanner(editStore(rec, st), fixedDraft()).OptimizeTrip(context.Background(), 7, nil, nil)

	var invalid *planner.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)
	assert.Nil(t, rec.saved)
}

func TestOptimizeTrip_NightStopStaysLast(t *testing.T) {
	at := func(id int, lng float64) trip.Stop {
		return storedStop(trip.Place{ID: id, Category: trip.CategorySightseeing, Latitude: 35.10, Longitude: lng}, 60)
	}
	view := at(9, 129.005)
	view.NightOnly = true
	st := storedTrip()
	st.Itinerary.Days[0].Stops = []trip.Stop{at(1, 129.00), at(2, 129.01), at(3, 129.02), view}

	rec := &recorder{}
	_, err := newPlanner(editStore(rec, st), fixedDraft()).OptimizeTrip(context.Background(), 7, nil, nil)
	require.NoError(t, err)

	require.NotNil(t, rec.saved)
	day := rec.saved.Days[0]
	assert.Equal(t, []int{1, 2, 3, 9}, stopIDs(day.Stops))
	last := day.Stops[3]
	assert.True(t, last.NightOnly)
	assert.Equal(t, trip.At(20, 0), *last.ArrivalTime)
	assert.Equal(t, 3, last.LegFrom)
	require.NotNil(t, last.TravelMinutes)
	assertDayInvariants(t, *rec.saved)
}

func TestMoveStop_NightStopStaysLast(t *testing.T) {
	st := storedTrip()
	st.Itinerary.Days[0].Stops = append(st.Itinerary.Days[0].Stops, storedStop(busanPlaces()[5], 60))

	edit, err := newPlanner(editStore(&recorder{}, st), fixedDraft()).MoveStop(context.Background(), 7, 1, 6, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 6}, stopIDs(edit.Day.Stops))
	assert.Equal(t, trip.At(20, 0), *edit.Day.Stops[2].ArrivalTime)
	assertDayInvariants(t, trip.Itinerary{Days: []trip.DayPlan{edit.Day}})
}
