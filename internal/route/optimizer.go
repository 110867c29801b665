package route

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// LegEstimator returns the travel leg between two points. Implementations
// must not fail; they degrade to an estimate instead.
type LegEstimator interface {
	Estimate(ctx context.Context, from, to geo.Point) Leg
}

// Optimizer orders each day's stops to shorten travel and annotates every
// stop with the travel leg from its predecessor.
type Optimizer struct {
	legs LegEstimator
	log  *slog.Logger
}

// NewOptimizer constructs an Optimizer. A nil legs uses FallbackEstimator.
func NewOptimizer(legs LegEstimator, log *slog.Logger) *Optimizer {
	if legs == nil {
		legs = FallbackEstimator{}
	}
	return &Optimizer{legs: legs, log: log}
}

// Optimize reorders every day independently and in parallel. Days with two
// or fewer stops keep their order. The input map is not modified.
func (o *Optimizer) Optimize(ctx context.Context, days map[int][]trip.Stop, start, end *geo.Point) (map[int][]trip.Stop, error) {
	dayNums := make([]int, 0, len(days))
	for day := range days {
		dayNums = append(dayNums, day)
	}
	sort.Ints(dayNums)
	results := make([][]trip.Stop, len(dayNums))

	g, gCtx := errgroup.WithContext(ctx)

	for i, day := range dayNums {
		stops := append([]trip.Stop(nil), days[day]...)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					o.log.Error("optimizing day panicked", "day", day, "recover", r)
					err = fmt.Errorf("optimizing day %d panicked: %v", day, r)
				}
			}()
			if len(stops) > 2 {
				stops = Order(stops, start, end)
			}
			if err := o.Annotate(gCtx, stops); err != nil {
				return fmt.Errorf("annotating day %d: %w", day, err)
			}
			trip.Renumber(day, stops)
			results[i] = stops
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]trip.Stop, len(dayNums))
	for i, day := range dayNums {
		out[day] = results[i]
	}
	return out, nil
}

// Order returns stops in nearest-neighbour + 2-opt order. The tour starts at
// the stop nearest start, or at the first stop when start is nil, and may
// re-anchor one of its last stops toward end.
func Order(stops []trip.Stop, start, end *geo.Point) []trip.Stop {
	if len(stops) < 2 {
		return append([]trip.Stop(nil), stops...)
	}

	pts := make([]geo.Point, len(stops))
	for i, s := range stops {
		pts[i] = s.Point()
	}
	m := geo.NewMatrix(pts)

	first := 0
	if start != nil {
		first = nearest(pts, *start)
	}
	tour := TwoOpt(m, NearestNeighbor(m, first))

	if end != nil {
		toEnd := make([]float64, len(pts))
		for i, p := range pts {
			toEnd[i] = geo.HaversineKm(p, *end)
		}
		tour = AnchorEnd(m, tour, toEnd)
	}

	out := make([]trip.Stop, len(tour))
	for i, idx := range tour {
		out[i] = stops[idx]
	}
	return out
}

func nearest(pts []geo.Point, p geo.Point) int {
	best := 0
	for i := 1; i < len(pts); i++ {
		if geo.HaversineKm(p, pts[i]) < geo.HaversineKm(p, pts[best]) {
			best = i
		}
	}
	return best
}

// Annotate fills travel minutes, mode and LegFrom for every stop from its
// predecessor, looking legs up concurrently. The first stop has no leg.
func (o *Optimizer) Annotate(ctx context.Context, stops []trip.Stop) error {
	if len(stops) == 0 {
		return nil
	}
	stops[0].TravelMinutes = nil
	stops[0].TransportMode = ""
	stops[0].LegFrom = 0

	var g errgroup.Group
	for i := 1; i < len(stops); i++ {
		from, to := stops[i-1].Point(), stops[i].Point()
		prevID := stops[i-1].ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			leg := o.legs.Estimate(ctx, from, to)
			minutes := leg.Minutes
			stops[i].TravelMinutes = &minutes
			stops[i].TransportMode = leg.Mode
			stops[i].LegFrom = prevID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("estimating legs: %w", err)
	}
	return ctx.Err()
}

// Score maps the average leg distance across all days to [0,1]: 1.0 at or
// under 5 km, 0.0 at or over 20 km, linear in between. No legs scores 1.0.
func Score(days map[int][]trip.Stop) float64 {
	total := 0.0
	legs := 0
	for _, stops := range days {
		for i := 1; i < len(stops); i++ {
			total += geo.HaversineKm(stops[i-1].Point(), stops[i].Point())
			legs++
		}
	}
	if legs == 0 {
		return 1.0
	}

	avg := total / float64(legs)
	switch {
	case avg <= 5:
		return 1.0
	case avg >= 20:
		return 0.0
	default:
		return 1.0 - (avg-5)/15
	}
}

// TotalTravel sums travel minutes over the given stops.
func TotalTravel(stops []trip.Stop) int {
	total := 0
	for _, s := range stops {
		if s.TravelMinutes != nil {
			total += *s.TravelMinutes
		}
	}
	return total
}
