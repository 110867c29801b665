package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/neexbeast/tripplanner/internal/directions"
	"github.com/neexbeast/tripplanner/internal/geo"
	"github.com/neexbeast/tripplanner/internal/metrics"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// ErrRoutingUnavailable means the routing collaborator returned no usable
// route. Callers fall back to the distance-based estimate.
var ErrRoutingUnavailable = errors.New("routing unavailable")

const (
	minTravelMinutes = 5

	walkMaxKm    = 0.5
	transitMaxKm = 5.0

	walkMetersPerMinute = 80.0
	transitKmh          = 20.0
	transitOverhead     = 5
	carKmh              = 30.0
	carOverhead         = 10
)

// Travel sources, used as the metrics label.
const (
	SourceCache    = "cache"
	SourceAPI      = "api"
	SourceFallback = "fallback"
)

// Leg is the travel estimate between two consecutive stops.
type Leg struct {
	Minutes int
	Mode    trip.TransportMode
	Source  string
}

// modeFor picks a transport mode from straight-line or routed distance.
func modeFor(km float64) trip.TransportMode {
	switch {
	case km < walkMaxKm:
		return trip.ModeWalk
	case km <= transitMaxKm:
		return trip.ModePublicTransit
	default:
		return trip.ModeCar
	}
}

// FallbackLeg estimates travel from great-circle distance: walking at 80 m/min
// under 0.5 km, transit at 20 km/h plus 5 min up to 5 km, car at 30 km/h plus
// 10 min beyond. Never less than 5 minutes.
func FallbackLeg(from, to geo.Point) Leg {
	km := geo.HaversineKm(from, to)

	var minutes int
	switch modeFor(km) {
	case trip.ModeWalk:
		minutes = int(km * 1000 / walkMetersPerMinute)
	case trip.ModePublicTransit:
		minutes = int(km/transitKmh*60) + transitOverhead
	default:
		minutes = int(km/carKmh*60) + carOverhead
	}

	return Leg{Minutes: max(minutes, minTravelMinutes), Mode: modeFor(km), Source: SourceFallback}
}

// FallbackEstimator answers every lookup with FallbackLeg.
type FallbackEstimator struct{}

func (FallbackEstimator) Estimate(_ context.Context, from, to geo.Point) Leg {
	metrics.TravelLookups.WithLabelValues(SourceFallback).Inc()
	return FallbackLeg(from, to)
}

// Router is the routing collaborator.
type Router interface {
	Route(ctx context.Context, from, to geo.Point) (directions.Route, error)
}

// RouteCache is a read-through cache of routing results. Get returns nil, nil on a miss.
// Entries without a usable duration are deleted on read.
type RouteCache interface {
	Get(ctx context.Context, key string) (*directions.Route, error)
	Set(ctx context.Context, key string, r directions.Route) error
	Delete(ctx context.Context, key string) error
}

// EstimatorConfig bounds calls to the routing collaborator.
type EstimatorConfig struct {
	Concurrency int
	RPS         float64
	Timeout     time.Duration
}

// Estimator looks travel legs up in the cache, then the routing collaborator,
// then falls back to FallbackLeg. It never fails.
type Estimator struct {
	router  Router
	cache   RouteCache
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// NewEstimator constructs an Estimator. cache may be nil.
func NewEstimator(router Router, cache RouteCache, cfg EstimatorConfig, log *slog.Logger) *Estimator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	limit := rate.Inf
	burst := cfg.Concurrency
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(math.Ceil(cfg.RPS)))
	}
	return &Estimator{
		router:  router,
		cache:   cache,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		log:     log,
	}
}

func cacheKey(from, to geo.Point) string {
	return fmt.Sprintf("%.5f,%.5f:%.5f,%.5f", from.Lat, from.Lng, to.Lat, to.Lng)
}

// legFromRoute converts a routed duration to whole minutes, rounding up.
func legFromRoute(r directions.Route, from, to geo.Point, source string) Leg {
	minutes := int(math.Ceil(float64(r.DurationSeconds) / 60))
	km := float64(r.DistanceMeters) / 1000
	if r.DistanceMeters <= 0 {
		km = geo.HaversineKm(from, to)
	}
	return Leg{Minutes: max(minutes, minTravelMinutes), Mode: modeFor(km), Source: source}
}

// Estimate returns the travel leg from one point to another.
func (e *Estimator) Estimate(ctx context.Context, from, to geo.Point) Leg {
	leg, err := e.lookup(ctx, from, to)
	if err != nil {
		if errors.Is(err, ErrRoutingUnavailable) {
			e.log.Debug("routing unavailable, using fallback", "from", from, "to", to)
		} else {
			e.log.Warn("routing lookup failed, using fallback", "from", from, "to", to, "err", err)
		}
		leg = FallbackLeg(from, to)
	}
	metrics.TravelLookups.WithLabelValues(leg.Source).Inc()
	return leg
}

func (e *Estimator) lookup(ctx context.Context, from, to geo.Point) (Leg, error) {
	if e.router == nil {
		return Leg{}, ErrRoutingUnavailable
	}

	key := cacheKey(from, to)
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, key)
		if err != nil {
			e.log.Warn("route cache get failed", "key", key, "err", err)
		} else if cached != nil {
			if cached.DurationSeconds > 0 {
				return legFromRoute(*cached, from, to, SourceCache), nil
			}
			if err := e.cache.Delete(ctx, key); err != nil {
				e.log.Warn("route cache delete failed", "key", key, "err", err)
			}
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Leg{}, fmt.Errorf("waiting for routing slot: %w", err)
	}
	defer e.sem.Release(1)

	if err := e.limiter.Wait(ctx); err != nil {
		return Leg{}, fmt.Errorf("waiting for routing rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	r, err := e.router.Route(callCtx, from, to)
	if err != nil {
		return Leg{}, fmt.Errorf("routing %s: %w", key, err)
	}
	if r.DurationSeconds <= 0 {
		return Leg{}, ErrRoutingUnavailable
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, r); err != nil {
			e.log.Warn("route cache set failed", "key", key, "err", err)
		}
	}
	return legFromRoute(r, from, to, SourceAPI), nil
}
