package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/tripplanner/internal/trip"
)

// ErrNotFound is returned when a trip does not exist.
var ErrNotFound = errors.New("not found")

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository provides database access for places and trips.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// StoredTrip is a persisted trip: the accepted request, the preference it
// was generated with, and the current itinerary.
type StoredTrip struct {
	ID         int64            `json:"trip_id"`
	Request    trip.TripRequest `json:"request"`
	Preference *trip.Preference `json:"preference,omitempty"`
	Itinerary  trip.Itinerary   `json:"itinerary"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

const placeColumns = `p.id, p.name, p.category, p.address, p.latitude, p.longitude, p.tags,
		p.operating_hours, p.closed_days, p.fee_info, p.description, p.image_url, p.popularity`

// placeDest returns scan destinations matching placeColumns.
func placeDest(p *trip.Place) []any {
	return []any{
		&p.ID, &p.Name, &p.Category, &p.Address, &p.Latitude, &p.Longitude, &p.Tags,
		&p.OperatingHours, &p.ClosedDays, &p.FeeInfo, &p.Description, &p.ImageURL, &p.Popularity,
	}
}

func (r *Repository) queryPlaces(ctx context.Context, q string, args ...any) ([]trip.Place, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying places: %w", err)
	}
	defer rows.Close()

	var places []trip.Place
	for rows.Next() {
		var p trip.Place
		if err := rows.Scan(placeDest(&p)...); err != nil {
			return nil, fmt.Errorf("scanning place row: %w", err)
		}
		places = append(places, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating place rows: %w", err)
	}

	return places, nil
}

// ListPlaces returns places whose address mentions region (all places when
// region is empty), skipping the excluded ids.
func (r *Repository) ListPlaces(ctx context.Context, region string, exclude []int) ([]trip.Place, error) {
	q := `
		SELECT ` + placeColumns + `
		FROM places p
		WHERE ($1 = '' OR p.address ILIKE '%' || $1 || '%')
		AND NOT (p.id = ANY($2::int[]))
		ORDER BY p.id
	`
	if exclude == nil {
		exclude = []int{}
	}
	places, err := r.queryPlaces(ctx, q, region, exclude)
	if err != nil {
		return nil, fmt.Errorf("listing places for region %s: %w", region, err)
	}
	return places, nil
}

// GetPlaces returns the places with the given ids, in id order. Unknown ids
// are skipped.
func (r *Repository) GetPlaces(ctx context.Context, ids []int) ([]trip.Place, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `
		SELECT ` + placeColumns + `
		FROM places p
		WHERE p.id = ANY($1::int[])
		ORDER BY p.id
	`
	places, err := r.queryPlaces(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("getting places by id: %w", err)
	}
	return places, nil
}

// CreateTrip stores an accepted request and returns the new trip id.
func (r *Repository) CreateTrip(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (int64, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshaling trip request: %w", err)
	}
	var prefJSON []byte
	if pref != nil {
		if prefJSON, err = json.Marshal(pref); err != nil {
			return 0, fmt.Errorf("marshaling preference: %w", err)
		}
	}

	const q = `
		INSERT INTO trips (title, region, start_date, end_date, request, preference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	if err := r.q.QueryRow(ctx, q, req.Title, req.Region, req.StartDate.Time, req.EndDate.Time, reqJSON, prefJSON).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting trip for region %s: %w", req.Region, err)
	}
	return id, nil
}

// SaveItinerary replaces every day of the trip with it.Days and updates the
// trip-level summary, score and generation id, in one transaction.
func (r *Repository) SaveItinerary(ctx context.Context, tripID int64, it trip.Itinerary) error {
	return withTx(ctx, r.q, func(tx pgx.Tx) error {
		const q = `
			UPDATE trips
			SET trip_summary       = $2,
			    optimization_score = $3,
			    generation_id      = $4,
			    updated_at         = NOW()
			WHERE id = $1
		`
		tag, err := tx.Exec(ctx, q, tripID, it.TripSummary, it.OptimizationScore, it.GenerationID)
		if err != nil {
			return fmt.Errorf("updating trip %d: %w", tripID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("updating trip %d: %w", tripID, ErrNotFound)
		}

		for _, day := range it.Days {
			if err := replaceDay(ctx, tx, tripID, day); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveDay replaces a single day's stops in one transaction.
func (r *Repository) SaveDay(ctx context.Context, tripID int64, day trip.DayPlan) error {
	return withTx(ctx, r.q, func(tx pgx.Tx) error {
		return replaceDay(ctx, tx, tripID, day)
	})
}

func replaceDay(ctx context.Context, tx pgx.Tx, tripID int64, day trip.DayPlan) error {
	const upsertDay = `
		INSERT INTO trip_days (trip_id, day_number, date, theme, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trip_id, day_number) DO UPDATE
		SET date    = EXCLUDED.date,
		    theme   = EXCLUDED.theme,
		    summary = EXCLUDED.summary
	`
	if _, err := tx.Exec(ctx, upsertDay, tripID, day.DayNumber, day.Date.Time, day.Theme, day.Summary); err != nil {
		return fmt.Errorf("saving day %d of trip %d: %w", day.DayNumber, tripID, err)
	}

	const clearStops = `DELETE FROM trip_stops WHERE trip_id = $1 AND day_number = $2`
	if _, err := tx.Exec(ctx, clearStops, tripID, day.DayNumber); err != nil {
		return fmt.Errorf("clearing stops of day %d of trip %d: %w", day.DayNumber, tripID, err)
	}

	const insertStop = `
		INSERT INTO trip_stops (
			trip_id, day_number, order_index, place_id, arrival_minutes, stay_duration,
			travel_time_from_prev, transport_mode, selection_reason, night_only, must_visit
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, s := range day.Stops {
		var arrival *int
		if s.ArrivalTime != nil {
			m := int(*s.ArrivalTime)
			arrival = &m
		}
		_, err := tx.Exec(ctx, insertStop,
			tripID, day.DayNumber, s.OrderIndex, s.ID, arrival, s.StayMinutes,
			s.TravelMinutes, string(s.TransportMode), s.Reason, s.NightOnly, s.MustVisit,
		)
		if err != nil {
			return fmt.Errorf("inserting stop %d on day %d of trip %d: %w", s.ID, day.DayNumber, tripID, err)
		}
	}
	return nil
}

// LoadTrip returns the stored trip with its days and stops.
// Returns ErrNotFound when the trip does not exist.
func (r *Repository) LoadTrip(ctx context.Context, tripID int64) (*StoredTrip, error) {
	const q = `
		SELECT id, request, preference, trip_summary, optimization_score, generation_id, created_at, updated_at
		FROM trips
		WHERE id = $1
	`

	var t StoredTrip
	var reqJSON, prefJSON []byte
	var summary, generationID *string
	var score *float64

	err := r.q.QueryRow(ctx, q, tripID).Scan(
		&t.ID,
		&reqJSON,
		&prefJSON,
		&summary,
		&score,
		&generationID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying trip %d: %w", tripID, err)
	}

	if err := json.Unmarshal(reqJSON, &t.Request); err != nil {
		return nil, fmt.Errorf("unmarshaling request of trip %d: %w", tripID, err)
	}
	if len(prefJSON) > 0 {
		var pref trip.Preference
		if err := json.Unmarshal(prefJSON, &pref); err != nil {
			return nil, fmt.Errorf("unmarshaling preference of trip %d: %w", tripID, err)
		}
		t.Preference = &pref
	}

	days, err := r.loadDays(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if err := r.loadStops(ctx, tripID, days); err != nil {
		return nil, err
	}

	it := trip.Itinerary{
		TripID:    t.ID,
		Title:     t.Request.Title,
		Region:    t.Request.Region,
		StartDate: t.Request.StartDate,
		EndDate:   t.Request.EndDate,
		Days:      days,
		TotalDays: len(days),
	}
	if summary != nil {
		it.TripSummary = *summary
	}
	if score != nil {
		it.OptimizationScore = *score
	}
	if generationID != nil {
		it.GenerationID = *generationID
	}
	for _, d := range days {
		it.TotalPlaces += d.TotalPlaces
		it.TotalTravel += d.TotalTravel
	}
	t.Itinerary = it
	return &t, nil
}

func (r *Repository) loadDays(ctx context.Context, tripID int64) ([]trip.DayPlan, error) {
	const q = `
		SELECT day_number, date, theme, summary
		FROM trip_days
		WHERE trip_id = $1
		ORDER BY day_number
	`

	rows, err := r.q.Query(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("querying days of trip %d: %w", tripID, err)
	}
	defer rows.Close()

	var days []trip.DayPlan
	for rows.Next() {
		var d trip.DayPlan
		var date time.Time
		if err := rows.Scan(&d.DayNumber, &date, &d.Theme, &d.Summary); err != nil {
			return nil, fmt.Errorf("scanning day row: %w", err)
		}
		d.Date = trip.Date{Time: date}
		d.Stops = []trip.Stop{}
		days = append(days, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating day rows: %w", err)
	}

	return days, nil
}

// loadStops fills each day's stops in order. Travel fields of a stored stop
// were measured from the stop before it.
func (r *Repository) loadStops(ctx context.Context, tripID int64, days []trip.DayPlan) error {
	q := `
		SELECT s.day_number, s.order_index, s.arrival_minutes, s.stay_duration,
		       s.travel_time_from_prev, s.transport_mode, s.selection_reason,
		       s.night_only, s.must_visit, ` + placeColumns + `
		FROM trip_stops s
		JOIN places p ON p.id = s.place_id
		WHERE s.trip_id = $1
		ORDER BY s.day_number, s.order_index
	`

	rows, err := r.q.Query(ctx, q, tripID)
	if err != nil {
		return fmt.Errorf("querying stops of trip %d: %w", tripID, err)
	}
	defer rows.Close()

	index := make(map[int]int, len(days))
	for i, d := range days {
		index[d.DayNumber] = i
	}

	for rows.Next() {
		var s trip.Stop
		var arrival *int
		var mode string
		dest := append([]any{
			&s.DayNumber, &s.OrderIndex, &arrival, &s.StayMinutes,
			&s.TravelMinutes, &mode, &s.Reason,
			&s.NightOnly, &s.MustVisit,
		}, placeDest(&s.Place)...)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning stop row: %w", err)
		}
		s.TransportMode = trip.TransportMode(mode)
		if arrival != nil {
			s.ArrivalTime = trip.Clock(*arrival).Ptr()
		}

		i, ok := index[s.DayNumber]
		if !ok {
			continue
		}
		stops := days[i].Stops
		if n := len(stops); n > 0 && s.TravelMinutes != nil {
			s.LegFrom = stops[n-1].ID
		}
		days[i].Stops = append(stops, s)
		days[i].TotalPlaces++
		if s.TravelMinutes != nil {
			days[i].TotalTravel += *s.TravelMinutes
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating stop rows: %w", err)
	}

	return nil
}
