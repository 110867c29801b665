package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/tripplanner/internal/metrics"
	"github.com/neexbeast/tripplanner/internal/route"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// Drop records a stop the scheduler removed from a day.
type Drop struct {
	Day     int    `json:"day"`
	PlaceID int    `json:"place_id"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
}

// Result is the scheduled trip.
type Result struct {
	Days     map[int][]trip.Stop
	Warnings []trip.Warning
	Dropped  []Drop
}

// Scheduler assigns arrival times and stay durations to ordered days,
// enforcing meal windows, night-only placement, closed days, opening hours
// and the day end.
type Scheduler struct {
	policy        Policy
	nightKeywords []string
	neverNight    map[string]bool
	log           *slog.Logger
}

// NewScheduler constructs a Scheduler for policy.
func NewScheduler(policy Policy, log *slog.Logger) *Scheduler {
	kws := make([]string, 0, len(policy.NightKeywords))
	for _, kw := range policy.NightKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	never := make(map[string]bool, len(policy.NeverNightCategories))
	for _, c := range policy.NeverNightCategories {
		never[strings.ToLower(c)] = true
	}
	return &Scheduler{policy: policy, nightKeywords: kws, neverNight: never, log: log}
}

// Policy returns the rules this scheduler applies.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// IsNightOnly reports whether a stop belongs in the late-evening slot: it is
// flagged or its name or tags carry a night keyword, and its category is not
// one that is never night-only.
func (s *Scheduler) IsNightOnly(st trip.Stop) bool {
	if s.neverNight[strings.ToLower(st.Category)] {
		return false
	}
	if st.NightOnly {
		return true
	}
	name := strings.ToLower(st.Name)
	for _, kw := range s.nightKeywords {
		if strings.Contains(name, kw) {
			return true
		}
		for _, tag := range st.Tags {
			if strings.Contains(strings.ToLower(tag), kw) {
				return true
			}
		}
	}
	return false
}

// Schedule processes every day in parallel. pref may be nil.
func (s *Scheduler) Schedule(ctx context.Context, days map[int][]trip.Stop, pref *trip.Preference, start trip.Date) (Result, error) {
	dayStart, dayEnd, pc := s.bounds(pref)

	dayNums := make([]int, 0, len(days))
	for d := range days {
		dayNums = append(dayNums, d)
	}
	sort.Ints(dayNums)
	results := make([]dayResult, len(dayNums))

	g, gCtx := errgroup.WithContext(ctx)
	for i, day := range dayNums {
		stops := days[day]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("scheduling day panicked", "day", day, "recover", r)
					err = fmt.Errorf("scheduling day %d panicked: %v", day, r)
				}
			}()
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = s.scheduleDay(day, stops, start.AddDays(day-1), dayStart, dayEnd, pc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{Days: make(map[int][]trip.Stop, len(dayNums))}
	for i, day := range dayNums {
		out.Days[day] = results[i].stops
		out.Warnings = append(out.Warnings, results[i].warnings...)
		out.Dropped = append(out.Dropped, results[i].dropped...)
	}
	return out, nil
}

func (s *Scheduler) bounds(pref *trip.Preference) (dayStart, dayEnd trip.Clock, pc Pacing) {
	dayStart, dayEnd = s.policy.DayStart, s.policy.DayEnd
	pace := s.policy.DefaultPace
	if pref != nil {
		if pref.DayStart != nil {
			dayStart = *pref.DayStart
		}
		if pref.DayEnd != nil {
			dayEnd = *pref.DayEnd
		}
		if pref.Pace != "" {
			pace = pref.Pace
		}
	}
	return dayStart, dayEnd, s.policy.pacing(pace)
}

// NightLast returns a copy of stops with night-only stops flagged and moved,
// in their given order, behind every other stop.
func (s *Scheduler) NightLast(stops []trip.Stop) []trip.Stop {
	out := make([]trip.Stop, 0, len(stops))
	var night []trip.Stop
	for _, st := range stops {
		st.NightOnly = s.IsNightOnly(st)
		if st.NightOnly {
			night = append(night, st)
			continue
		}
		out = append(out, st)
	}
	return append(out, night...)
}

// Retime recomputes arrival times for a day whose order was chosen elsewhere.
// The order is kept except that night-only stops go last and wait for the
// night start. Nothing is dropped; every violation becomes a warning. Stops
// keep a stay already assigned to them.
func (s *Scheduler) Retime(day int, stops []trip.Stop, pref *trip.Preference, date trip.Date) ([]trip.Stop, []trip.Warning) {
	dayStart, dayEnd, pc := s.bounds(pref)
	var res dayResult

	out := s.NightLast(stops)
	nights := 0
	cur := dayStart
	for i := range out {
		st := &out[i]
		if i == 0 {
			st.TravelMinutes = nil
			st.TransportMode = ""
			st.LegFrom = 0
		} else if prev := out[i-1]; st.LegFrom != prev.ID || st.TravelMinutes == nil {
			leg := route.FallbackLeg(prev.Point(), st.Point())
			minutes := leg.Minutes
			st.TravelMinutes = &minutes
			st.TransportMode = leg.Mode
			st.LegFrom = prev.ID
		}

		arrival := cur
		if st.TravelMinutes != nil {
			arrival = arrival.Add(*st.TravelMinutes)
		}
		if st.NightOnly {
			if arrival < s.policy.NightStart {
				arrival = s.policy.NightStart
			}
			if nights++; nights > 1 {
				res.warn(day, *st, violation{trip.WarnCapacity, "shares the evening with another night stop"})
			}
		}
		if IsClosedOn(st.ClosedDays, date.Weekday()) {
			res.warn(day, *st, violation{trip.WarnClosedDay, fmt.Sprintf("is closed on %s", date.Weekday())})
		}
		if open, closing, ok := ParseHours(st.OperatingHours); ok {
			if arrival < open {
				arrival = open
			}
			if arrival >= closing {
				res.warn(day, *st, violation{trip.WarnAfterClosing, fmt.Sprintf("arrives at %s, after closing at %s", arrival, closing)})
			}
		}

		stay := st.StayMinutes
		if stay <= 0 {
			stay = s.stayMinutes(*st, pc)
		}
		finish := arrival.Add(stay)
		if finish > dayEnd {
			res.warn(day, *st, violation{trip.WarnPastDayEnd, fmt.Sprintf("finishes at %s, after the day ends at %s", finish, dayEnd)})
		}

		st.ArrivalTime = arrival.Ptr()
		st.StayMinutes = stay
		cur = finish.Add(pc.BufferMinutes)
	}

	trip.Renumber(day, out)
	return out, res.warnings
}

type slot int

const (
	slotFree slot = iota
	slotLunch
	slotDinner
	slotNight
)

type slotted struct {
	stop trip.Stop
	slot slot
}

type violation struct {
	kind    string
	message string
}

type dayResult struct {
	stops    []trip.Stop
	warnings []trip.Warning
	dropped  []Drop
}

func (r *dayResult) warn(day int, st trip.Stop, v violation) {
	metrics.ScheduleWarnings.WithLabelValues(v.kind).Inc()
	r.warnings = append(r.warnings, trip.Warning{
		Day:     day,
		PlaceID: st.ID,
		Kind:    v.kind,
		Message: fmt.Sprintf("Day %d: %s %s", day, st.Name, v.message),
	})
}

func (r *dayResult) drop(day int, st trip.Stop, reason string) {
	metrics.DroppedStops.WithLabelValues(reason).Inc()
	r.dropped = append(r.dropped, Drop{Day: day, PlaceID: st.ID, Name: st.Name, Reason: reason})
}

// mustVisitFirst stably moves must-visit stops to the front.
func mustVisitFirst(stops []trip.Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].MustVisit && !stops[j].MustVisit
	})
}

// sequence arranges a day as morning, lunch, afternoon, dinner, night. At most
// two meals and one night-only stop are kept; the rest are returned as extras.
func (s *Scheduler) sequence(stops []trip.Stop) (seq []slotted, extras []trip.Stop) {
	var night, meals, others []trip.Stop
	for _, st := range stops {
		st.NightOnly = s.IsNightOnly(st)
		switch {
		case st.NightOnly:
			night = append(night, st)
		case st.Category == trip.CategoryRestaurant:
			meals = append(meals, st)
		default:
			others = append(others, st)
		}
	}
	mustVisitFirst(meals)
	mustVisitFirst(night)

	if len(meals) > 2 {
		extras = append(extras, meals[2:]...)
		meals = meals[:2]
	}
	if len(night) > 1 {
		extras = append(extras, night[1:]...)
		night = night[:1]
	}

	split := min(len(others)/2, s.policy.MorningCap)
	for _, st := range others[:split] {
		seq = append(seq, slotted{st, slotFree})
	}
	if len(meals) > 0 {
		seq = append(seq, slotted{meals[0], slotLunch})
	}
	for _, st := range others[split:] {
		seq = append(seq, slotted{st, slotFree})
	}
	if len(meals) > 1 {
		seq = append(seq, slotted{meals[1], slotDinner})
	}
	for _, st := range night {
		seq = append(seq, slotted{st, slotNight})
	}
	return seq, extras
}

func (s *Scheduler) scheduleDay(day int, stops []trip.Stop, date trip.Date, dayStart, dayEnd trip.Clock, pc Pacing) dayResult {
	var res dayResult
	p := s.policy

	seq, extras := s.sequence(stops)
	for _, st := range extras {
		if st.MustVisit {
			res.warn(day, st, violation{trip.WarnCapacity, "could not fit this day's meal or night slots"})
		}
		res.drop(day, st, trip.WarnCapacity)
		s.log.Debug("dropping stop over slot capacity", "day", day, "place_id", st.ID)
	}

	hasDinner := false
	for _, it := range seq {
		if it.slot == slotDinner {
			hasDinner = true
		}
	}

	cur := dayStart
	out := make([]trip.Stop, 0, len(seq))
	for _, it := range seq {
		st := it.stop

		if len(out) == 0 {
			st.TravelMinutes = nil
			st.TransportMode = ""
			st.LegFrom = 0
		} else if prev := out[len(out)-1]; st.LegFrom != prev.ID || st.TravelMinutes == nil {
			leg := route.FallbackLeg(prev.Point(), st.Point())
			minutes := leg.Minutes
			st.TravelMinutes = &minutes
			st.TransportMode = leg.Mode
			st.LegFrom = prev.ID
		}

		arrival := cur
		if st.TravelMinutes != nil {
			arrival = arrival.Add(*st.TravelMinutes)
		}

		var violations []violation

		switch it.slot {
		case slotLunch:
			var ok bool
			if arrival, ok = s.lunchArrival(arrival, hasDinner); !ok {
				violations = append(violations, violation{trip.WarnMealWindow, fmt.Sprintf("arrives at %s, outside the lunch and dinner windows", arrival)})
			}
		case slotDinner:
			if arrival < p.DinnerStart {
				arrival = p.DinnerStart
			}
		case slotNight:
			if arrival < p.NightStart {
				arrival = p.NightStart
			}
		}

		if IsClosedOn(st.ClosedDays, date.Weekday()) {
			violations = append(violations, violation{trip.WarnClosedDay, fmt.Sprintf("is closed on %s", date.Weekday())})
		}

		if open, closing, ok := ParseHours(st.OperatingHours); ok {
			if arrival < open {
				arrival = open
			}
			if arrival >= closing {
				violations = append(violations, violation{trip.WarnAfterClosing, fmt.Sprintf("arrives at %s, after closing at %s", arrival, closing)})
			}
		}

		stay := s.stayMinutes(st, pc)
		finish := arrival.Add(stay)
		if finish > dayEnd {
			violations = append(violations, violation{trip.WarnPastDayEnd, fmt.Sprintf("finishes at %s, after the day ends at %s", finish, dayEnd)})
		}

		if len(violations) > 0 {
			if !st.MustVisit {
				res.drop(day, st, violations[0].kind)
				s.log.Debug("dropping stop", "day", day, "place_id", st.ID, "reason", violations[0].kind)
				continue
			}
			for _, v := range violations {
				res.warn(day, st, v)
			}
		}

		st.ArrivalTime = arrival.Ptr()
		st.StayMinutes = stay
		out = append(out, st)
		cur = finish.Add(pc.BufferMinutes)
	}

	trip.Renumber(day, out)
	res.stops = out
	return res
}

// lunchArrival places a lunch-slot meal. Early arrivals wait for lunch; a late
// arrival close enough to dinner becomes dinner when no dinner meal exists.
func (s *Scheduler) lunchArrival(arrival trip.Clock, hasDinner bool) (trip.Clock, bool) {
	p := s.policy
	switch {
	case arrival < p.LunchStart:
		return p.LunchStart, true
	case arrival < p.LunchEnd:
		return arrival, true
	case !hasDinner && arrival >= p.DinnerStart.Add(-p.DinnerLead):
		if arrival < p.DinnerStart {
			return p.DinnerStart, true
		}
		return arrival, true
	}
	return arrival, false
}

// stayMinutes is the draft suggestion when within bounds, else the category
// default, scaled by the pace multiplier.
func (s *Scheduler) stayMinutes(st trip.Stop, pc Pacing) int {
	p := s.policy
	base := p.DefaultStay
	if v, ok := p.StayMinutes[st.Category]; ok {
		base = v
	}
	if st.SuggestedStay >= p.MinSuggestedStay && st.SuggestedStay <= p.MaxSuggestedStay {
		base = st.SuggestedStay
	}
	return int(float64(base) * pc.StayMultiplier)
}
