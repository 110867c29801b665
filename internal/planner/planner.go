package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/neexbeast/tripplanner/internal/draft"
	"github.com/neexbeast/tripplanner/internal/metrics"
	"github.com/neexbeast/tripplanner/internal/route"
	"github.com/neexbeast/tripplanner/internal/schedule"
	"github.com/neexbeast/tripplanner/internal/scoring"
	"github.com/neexbeast/tripplanner/internal/storage"
	"github.com/neexbeast/tripplanner/internal/trip"
)

const (
	draftAttempts      = 3
	maxTripDays        = 30
	defaultMaxPerDay   = 10
	minMaxPerDay       = 2
	maxMaxPerDay       = 20
	maxTitleLength     = 100
	mealsPerDay        = 2
	nightStopsPerDay   = 1
	generationMethodAI = "ai"
)

// Pipeline stage names used in StageError and the stage duration metric.
const (
	StageLoading    = "loading"
	StageScoring    = "scoring"
	StageDrafting   = "drafting"
	StageOptimizing = "optimizing"
	StageScheduling = "scheduling"
	StagePersisting = "persisting"
)

// Store is the persistence the planner needs.
type Store interface {
	ListPlaces(ctx context.Context, region string, exclude []int) ([]trip.Place, error)
	GetPlaces(ctx context.Context, ids []int) ([]trip.Place, error)
	CreateTrip(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (int64, error)
	SaveItinerary(ctx context.Context, tripID int64, it trip.Itinerary) error
	SaveDay(ctx context.Context, tripID int64, day trip.DayPlan) error
	LoadTrip(ctx context.Context, tripID int64) (*storage.StoredTrip, error)
}

// Planner runs the generation pipeline: score, draft, assign, optimize,
// schedule, persist.
type Planner struct {
	store     Store
	scorer    *scoring.Scorer
	drafts    draft.Generator
	optimizer *route.Optimizer
	scheduler *schedule.Scheduler
	log       *slog.Logger

	attempts int
	newID    func() string
}

// NewPlanner constructs a Planner with all required dependencies.
func NewPlanner(store Store, scorer *scoring.Scorer, drafts draft.Generator, optimizer *route.Optimizer, scheduler *schedule.Scheduler, log *slog.Logger) *Planner {
	return &Planner{
		store:     store,
		scorer:    scorer,
		drafts:    drafts,
		optimizer: optimizer,
		scheduler: scheduler,
		log:       log,
		attempts:  draftAttempts,
		newID:     uuid.NewString,
	}
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Generate builds, persists and returns an itinerary for req. pref may be nil.
func (p *Planner) Generate(ctx context.Context, req trip.TripRequest, pref *trip.Preference) (trip.Itinerary, error) {
	if err := normalize(&req); err != nil {
		return trip.Itinerary{}, err
	}
	days := req.Days()

	started := time.Now()
	pool, err := p.loadPool(ctx, req)
	if err != nil {
		return trip.Itinerary{}, err
	}
	observe(StageLoading, started)

	started = time.Now()
	cands := p.scorer.Score(pool, req, pref)
	observe(StageScoring, started)
	if len(cands) == 0 {
		return trip.Itinerary{}, ErrNoCandidates
	}
	if err := p.checkCapacity(cands, days); err != nil {
		return trip.Itinerary{}, err
	}

	started = time.Now()
	resp, err := p.requestDraft(ctx, draft.Request{
		Region:          req.Region,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Days:            days,
		MaxPlacesPerDay: req.MaxPlacesPerDay,
		Candidates:      cands,
		Preference:      pref,
	})
	if err != nil {
		return trip.Itinerary{}, err
	}
	observe(StageDrafting, started)

	assigned := p.assignDays(resp, cands, days, req.MaxPlacesPerDay)
	p.placeMustVisit(assigned, cands, days)

	started = time.Now()
	optimized, err := p.optimizer.Optimize(ctx, assigned, req.StartLocation, req.EndLocation)
	if err != nil {
		return trip.Itinerary{}, &StageError{Stage: StageOptimizing, Err: err}
	}
	observe(StageOptimizing, started)

	started = time.Now()
	scheduled, err := p.scheduler.Schedule(ctx, optimized, pref, req.StartDate)
	if err != nil {
		return trip.Itinerary{}, &StageError{Stage: StageScheduling, Err: err}
	}
	observe(StageScheduling, started)

	it := p.assemble(req, resp, scheduled)

	started = time.Now()
	tripID, err := p.store.CreateTrip(ctx, req, pref)
	if err != nil {
		return trip.Itinerary{}, &StageError{Stage: StagePersisting, Err: err}
	}
	it.TripID = tripID
	if err := p.store.SaveItinerary(ctx, tripID, it); err != nil {
		return trip.Itinerary{}, &StageError{Stage: StagePersisting, Err: err}
	}
	observe(StagePersisting, started)

	p.log.Info("itinerary generated",
		"trip_id", tripID,
		"generation_id", it.GenerationID,
		"days", days,
		"stops", it.TotalPlaces,
		"warnings", len(it.Warnings),
		"dropped", len(scheduled.Dropped),
	)
	return it, nil
}

// normalize validates req and fills defaults in place.
func normalize(req *trip.TripRequest) error {
	req.Region = strings.TrimSpace(req.Region)
	if req.Region == "" {
		return invalid("region is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return invalid("start_date and end_date are required")
	}
	if req.EndDate.Before(req.StartDate.Time) {
		return invalid("end_date %s is before start_date %s", req.EndDate, req.StartDate)
	}
	if days := req.Days(); days > maxTripDays {
		return invalid("trip of %d days exceeds the %d day limit", days, maxTripDays)
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return invalid("title is longer than %d characters", maxTitleLength)
	}

	switch {
	case req.MaxPlacesPerDay == 0:
		req.MaxPlacesPerDay = defaultMaxPerDay
	case req.MaxPlacesPerDay < minMaxPerDay || req.MaxPlacesPerDay > maxMaxPerDay:
		return invalid("max_places_per_day must be between %d and %d", minMaxPerDay, maxMaxPerDay)
	}
	if req.Title == "" {
		req.Title = fmt.Sprintf("%s %d-day trip", req.Region, req.Days())
	}
	return nil
}

// loadPool returns the region's places plus every must-visit place. An
// unknown must-visit id is the caller's mistake.
func (p *Planner) loadPool(ctx context.Context, req trip.TripRequest) ([]trip.Place, error) {
	pool, err := p.store.ListPlaces(ctx, req.Region, req.Exclude)
	if err != nil {
		return nil, &StageError{Stage: StageLoading, Err: err}
	}
	if len(req.MustVisit) == 0 {
		return pool, nil
	}

	must, err := p.store.GetPlaces(ctx, req.MustVisit)
	if err != nil {
		return nil, &StageError{Stage: StageLoading, Err: err}
	}
	found := make(map[int]bool, len(must))
	for _, pl := range must {
		found[pl.ID] = true
	}
	for _, id := range req.MustVisit {
		if !found[id] {
			return nil, invalid("must-visit place %d does not exist", id)
		}
	}
	return append(pool, must...), nil
}

// checkCapacity rejects must-visit sets that cannot fit the per-day meal and
// night slots.
func (p *Planner) checkCapacity(cands []trip.Candidate, days int) error {
	meals, nights := 0, 0
	for _, c := range cands {
		if !c.MustVisit {
			continue
		}
		switch {
		case p.isNight(trip.Stop{Candidate: c}):
			nights++
		case c.Category == trip.CategoryRestaurant:
			meals++
		}
	}
	if meals > mealsPerDay*days {
		return invalid("%d must-visit restaurants do not fit %d days of %d meals", meals, days, mealsPerDay)
	}
	if nights > nightStopsPerDay*days {
		return invalid("%d must-visit night places do not fit %d evenings", nights, days)
	}
	return nil
}

func (p *Planner) isNight(st trip.Stop) bool {
	return p.scheduler.IsNightOnly(st)
}

// requestDraft calls the generator, retrying only malformed replies.
func (p *Planner) requestDraft(ctx context.Context, req draft.Request) (draft.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		resp, err := p.drafts.GenerateDraft(ctx, req)
		if err == nil {
			metrics.DraftAttempts.WithLabelValues("ok").Inc()
			return resp, nil
		}
		if !errors.Is(err, draft.ErrMalformedResponse) {
			metrics.DraftAttempts.WithLabelValues("error").Inc()
			return draft.Response{}, &StageError{Stage: StageDrafting, Err: err}
		}

		metrics.DraftAttempts.WithLabelValues("malformed").Inc()
		p.log.Warn("draft response malformed", "attempt", attempt, "max_attempts", p.attempts, "err", err)
		lastErr = err

		if err := ctx.Err(); err != nil {
			return draft.Response{}, &StageError{Stage: StageDrafting, Err: err}
		}
	}
	return draft.Response{}, &DraftUnparseableError{Attempts: p.attempts, Err: lastErr}
}

// assemble builds the itinerary for days 1..n, including empty days.
func (p *Planner) assemble(req trip.TripRequest, resp draft.Response, res schedule.Result) trip.Itinerary {
	n := req.Days()
	themes := make(map[int]string, len(resp.Days))
	for _, d := range resp.Days {
		if _, ok := themes[d.DayNumber]; !ok {
			themes[d.DayNumber] = d.Theme
		}
	}

	it := trip.Itinerary{
		GenerationID:      p.newID(),
		Title:             req.Title,
		Region:            req.Region,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Days:              make([]trip.DayPlan, 0, n),
		TotalDays:         n,
		OptimizationScore: round2(route.Score(res.Days)),
		Warnings:          res.Warnings,
		GenerationMethod:  generationMethodAI,
	}
	for day := 1; day <= n; day++ {
		stops := res.Days[day]
		if stops == nil {
			stops = []trip.Stop{}
		}
		dp := trip.DayPlan{
			DayNumber:   day,
			Date:        req.StartDate.AddDays(day - 1),
			Theme:       themes[day],
			Summary:     resp.DaySummary(day),
			Stops:       stops,
			TotalPlaces: len(stops),
			TotalTravel: route.TotalTravel(stops),
		}
		it.Days = append(it.Days, dp)
		it.TotalPlaces += dp.TotalPlaces
		it.TotalTravel += dp.TotalTravel
	}
	it.TripSummary = summarize(resp.TripSummary, req.Region, n, res.Warnings)
	return it
}

// summarize appends every warning to the trip summary as a note.
func summarize(summary, region string, days int, warnings []trip.Warning) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = fmt.Sprintf("A %d-day trip in %s.", days, region)
	}
	if len(warnings) == 0 {
		return summary
	}
	notes := make([]string, len(warnings))
	for i, w := range warnings {
		notes[i] = w.Message
	}
	return summary + " [Note: " + strings.Join(notes, "; ") + "]"
}
