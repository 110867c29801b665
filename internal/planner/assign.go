package planner

import (
	"sort"
	"strings"

	"github.com/neexbeast/tripplanner/internal/draft"
	"github.com/neexbeast/tripplanner/internal/trip"
)

// assignDays maps the draft onto days 1..n. Entries naming a place outside
// the candidate list, or one already used on an earlier entry, are skipped;
// the first occurrence wins. Each day takes at most maxPerDay places that are
// not must-visit.
func (p *Planner) assignDays(resp draft.Response, cands []trip.Candidate, n, maxPerDay int) map[int][]trip.Stop {
	byID := make(map[int]trip.Candidate, len(cands))
	for _, c := range cands {
		byID[c.ID] = c
	}

	out := make(map[int][]trip.Stop, n)
	for day := 1; day <= n; day++ {
		out[day] = []trip.Stop{}
	}
	used := make(map[int]bool)
	optional := make(map[int]int, n)

	for _, d := range resp.Days {
		if d.DayNumber < 1 || d.DayNumber > n {
			p.log.Debug("skipping draft day outside the trip", "day", d.DayNumber)
			continue
		}
		entries := append([]draft.PlaceEntry(nil), d.Places...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Order < entries[j].Order
		})

		for _, e := range entries {
			c, ok := byID[e.PlaceID]
			switch {
			case !ok:
				p.log.Debug("skipping unknown draft place", "day", d.DayNumber, "place_id", e.PlaceID)
				continue
			case used[e.PlaceID]:
				p.log.Debug("skipping repeated draft place", "day", d.DayNumber, "place_id", e.PlaceID)
				continue
			case !c.MustVisit && optional[d.DayNumber] >= maxPerDay:
				continue
			}

			used[e.PlaceID] = true
			if !c.MustVisit {
				optional[d.DayNumber]++
			}
			reason := strings.TrimSpace(e.Reason)
			if reason == "" {
				reason = defaultReason(c)
			}
			out[d.DayNumber] = append(out[d.DayNumber], trip.Stop{
				Candidate:     c,
				SuggestedStay: e.StayDuration,
				Reason:        reason,
				NightOnly:     e.IsNight,
			})
		}
	}
	return out
}

func defaultReason(c trip.Candidate) string {
	if len(c.MatchReasons) == 0 {
		return "recommended"
	}
	return strings.Join(c.MatchReasons, ", ")
}

// placeMustVisit puts every must-visit candidate the draft left out on the
// day with the fewest stops, then spreads must-visit meals and night places
// so no day holds more than its slots can take.
func (p *Planner) placeMustVisit(days map[int][]trip.Stop, cands []trip.Candidate, n int) {
	placed := make(map[int]bool)
	for _, stops := range days {
		for _, s := range stops {
			placed[s.ID] = true
		}
	}

	for _, c := range cands {
		if !c.MustVisit || placed[c.ID] {
			continue
		}
		day := lightestDay(days, n, func(int) bool { return true })
		days[day] = append(days[day], trip.Stop{Candidate: c, Reason: defaultReason(c)})
		placed[c.ID] = true
		p.log.Debug("placing must-visit place left out of the draft", "day", day, "place_id", c.ID)
	}

	p.spread(days, n, mealsPerDay, func(s trip.Stop) bool {
		return !p.isNight(s) && s.Category == trip.CategoryRestaurant
	})
	p.spread(days, n, nightStopsPerDay, p.isNight)
}

// spread moves must-visit stops matching kind off days holding more than
// limit of them, onto the lightest day that still has room. When no day has
// room, a stop that only matches through the draft's night flag loses the
// flag and stays as an ordinary stop.
func (p *Planner) spread(days map[int][]trip.Stop, n, limit int, kind func(trip.Stop) bool) {
	count := func(day int) int {
		c := 0
		for _, s := range days[day] {
			if s.MustVisit && kind(s) {
				c++
			}
		}
		return c
	}

	for day := 1; day <= n; day++ {
		for count(day) > limit {
			idx := -1
			for i, s := range days[day] {
				if s.MustVisit && kind(s) {
					idx = i
				}
			}
			target := lightestDay(days, n, func(d int) bool { return d != day && count(d) < limit })
			if target == 0 {
				if !p.demote(days[day], kind) {
					p.log.Warn("no day has room for must-visit place", "day", day, "place_id", days[day][idx].ID)
					break
				}
				continue
			}

			s := days[day][idx]
			days[day] = append(days[day][:idx:idx], days[day][idx+1:]...)
			days[target] = append(days[target], s)
			p.log.Debug("moving must-visit place to a day with room", "from", day, "to", target, "place_id", s.ID)
		}
	}
}

// demote clears the draft night flag on the last must-visit stop that stops
// matching kind without it.
func (p *Planner) demote(stops []trip.Stop, kind func(trip.Stop) bool) bool {
	for i := len(stops) - 1; i >= 0; i-- {
		s := stops[i]
		if !s.MustVisit || !s.NightOnly || !kind(s) {
			continue
		}
		s.NightOnly = false
		if kind(s) {
			continue
		}
		stops[i].NightOnly = false
		p.log.Debug("no evening left for must-visit place, scheduling it by day", "place_id", s.ID)
		return true
	}
	return false
}

// lightestDay returns the accepted day with the fewest stops, the earliest
// on ties, or 0 when no day is accepted.
func lightestDay(days map[int][]trip.Stop, n int, accept func(int) bool) int {
	best := 0
	for day := 1; day <= n; day++ {
		if !accept(day) {
			continue
		}
		if best == 0 || len(days[day]) < len(days[best]) {
			best = day
		}
	}
	return best
}
