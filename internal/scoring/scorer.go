package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/neexbeast/tripplanner/internal/trip"
)

const (
	defaultMaxPerDay = 10
	maxCandidates    = 100
	floorScore       = 0.5

	weightTheme        = 0.4
	weightCategory     = 0.3
	weightBudget       = 0.2
	weightAvailability = 0.1
)

// Scorer ranks a place pool against a trip request and a user preference.
type Scorer struct {
	synonyms synonymIndex
}

// NewScorer constructs a Scorer with the built-in theme synonym table.
func NewScorer() *Scorer {
	return &Scorer{synonyms: buildSynonymIndex(themeGroups)}
}

// Score returns deduplicated candidates: must-visit places first (final score
// 1.0), then the top scored places, then any restaurants or cafes pulled in
// to satisfy the per-trip meal floors. pref may be nil.
func (s *Scorer) Score(pool []trip.Place, req trip.TripRequest, pref *trip.Preference) []trip.Candidate {
	days := req.Days()
	if days < 1 {
		days = 1
	}
	perDay := req.MaxPlacesPerDay
	if perDay <= 0 {
		perDay = defaultMaxPerDay
	}
	topK := min(perDay*days*2, maxCandidates)

	themes := req.Themes
	if len(themes) == 0 && pref != nil {
		themes = pref.PreferredThemes
	}

	excluded := make(map[int]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}
	mustVisit := make(map[int]bool, len(req.MustVisit))
	for _, id := range req.MustVisit {
		mustVisit[id] = true
	}

	byID := make(map[int]trip.Place, len(pool))
	var eligible []trip.Place
	for _, p := range pool {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		if excluded[p.ID] && !mustVisit[p.ID] {
			continue
		}
		byID[p.ID] = p
		if mustVisit[p.ID] || inRegion(p, req.Region) {
			eligible = append(eligible, p)
		}
	}

	out := make([]trip.Candidate, 0, topK+len(req.MustVisit))
	seen := make(map[int]bool)

	// must-visit in request order
	for _, id := range req.MustVisit {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		c := s.score(p, req, themes, pref)
		c.MustVisit = true
		c.FinalScore = 1.0
		c.MatchReasons = append([]string{"must visit"}, c.MatchReasons...)
		out = append(out, c)
		seen[id] = true
	}

	var scored []trip.Candidate
	for _, p := range eligible {
		if seen[p.ID] {
			continue
		}
		scored = append(scored, s.score(p, req, themes, pref))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	for _, c := range scored {
		out = append(out, c)
		seen[c.ID] = true
	}

	return s.repairFloors(out, eligible, seen, days)
}

// repairFloors appends restaurants and cafes from the eligible pool until the
// trip has at least two restaurants and one cafe per day, when available.
func (s *Scorer) repairFloors(out []trip.Candidate, eligible []trip.Place, seen map[int]bool, days int) []trip.Candidate {
	floors := map[string]int{
		trip.CategoryRestaurant: 2 * days,
		trip.CategoryCafe:       days,
	}
	have := make(map[string]int)
	for _, c := range out {
		have[c.Category]++
	}

	extras := make([]trip.Place, 0)
	for _, p := range eligible {
		if !seen[p.ID] {
			extras = append(extras, p)
		}
	}
	sort.SliceStable(extras, func(i, j int) bool {
		return popularity(extras[i]) > popularity(extras[j])
	})

	for _, category := range []string{trip.CategoryRestaurant, trip.CategoryCafe} {
		for _, p := range extras {
			if have[category] >= floors[category] {
				break
			}
			if p.Category != category || seen[p.ID] {
				continue
			}
			out = append(out, trip.Candidate{
				Place:        p,
				FinalScore:   floorScore,
				MatchReasons: []string{"meal coverage"},
			})
			seen[p.ID] = true
			have[category]++
		}
	}
	return out
}

func (s *Scorer) score(p trip.Place, req trip.TripRequest, themes []string, pref *trip.Preference) trip.Candidate {
	relevance := s.relevance(p, req, themes, pref)
	preference := s.preferenceWeight(p, pref)
	return trip.Candidate{
		Place:           p,
		RelevanceScore:  round3(relevance),
		PreferenceScore: round3(preference),
		FinalScore:      round3(0.6*relevance + 0.4*preference),
		MatchReasons:    s.reasons(p, req, themes, pref),
	}
}

func (s *Scorer) relevance(p trip.Place, req trip.TripRequest, themes []string, pref *trip.Preference) float64 {
	score := 0.0

	switch {
	case len(themes) == 0:
		score += weightTheme * 0.5
	case len(p.Tags) > 0:
		score += weightTheme * s.themeMatch(themes, p.Tags)
	}

	switch {
	case len(req.Categories) == 0:
		score += weightCategory * 0.5
	case containsFold(req.Categories, p.Category):
		score += weightCategory
	}

	budget := ""
	if pref != nil {
		budget = pref.BudgetLevel
	}
	switch {
	case budget == "":
		score += weightBudget * 0.5
	case p.FeeInfo != "":
		score += weightBudget * budgetMatch(p.FeeInfo, budget)
	}

	score += weightAvailability
	return math.Min(score, 1.0)
}

// themeMatch blends Jaccard similarity (40%) with coverage of the expanded query (60%).
func (s *Scorer) themeMatch(themes, tags []string) float64 {
	query := s.synonyms.expand(themes)
	if len(query) == 0 {
		return 0.5
	}
	placeTags := tagSet(tags)

	matched := 0
	for t := range query {
		if _, ok := placeTags[t]; ok {
			matched++
		}
	}
	union := len(query) + len(placeTags) - matched

	jaccard := 0.0
	if union > 0 {
		jaccard = float64(matched) / float64(union)
	}
	coverage := float64(matched) / float64(len(query))
	return 0.4*jaccard + 0.6*coverage
}

// preferenceWeight is 50% category weight plus 50% canonical theme overlap.
func (s *Scorer) preferenceWeight(p trip.Place, pref *trip.Preference) float64 {
	if pref == nil {
		return 0.5
	}

	score := 0.0
	factors := 0

	if len(pref.CategoryWeights) > 0 && p.Category != "" {
		w, ok := pref.CategoryWeights[p.Category]
		if !ok {
			w = 0.5
		}
		score += 0.5 * w
		factors++
	}

	if len(pref.PreferredThemes) > 0 && len(p.Tags) > 0 {
		preferred := s.synonyms.canonical(pref.PreferredThemes)
		if len(preferred) > 0 {
			placeThemes := s.synonyms.canonical(p.Tags)
			matched := 0
			for t := range preferred {
				if _, ok := placeThemes[t]; ok {
					matched++
				}
			}
			score += 0.5 * float64(matched) / float64(len(preferred))
			factors++
		}
	}

	if factors == 0 {
		return 0.5
	}
	return math.Min(score, 1.0)
}

func (s *Scorer) reasons(p trip.Place, req trip.TripRequest, themes []string, pref *trip.Preference) []string {
	var reasons []string

	if len(themes) > 0 && len(p.Tags) > 0 {
		query := s.synonyms.expand(themes)
		var matched []string
		for t := range tagSet(p.Tags) {
			if _, ok := query[t]; ok {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			sort.Strings(matched)
			if len(matched) > 3 {
				matched = matched[:3]
			}
			reasons = append(reasons, "theme match: "+strings.Join(matched, ", "))
		}
	}

	if containsFold(req.Categories, p.Category) {
		reasons = append(reasons, "category: "+p.Category)
	}
	if req.Region != "" && inRegion(p, req.Region) {
		reasons = append(reasons, "region: "+req.Region)
	}

	if pref != nil {
		if pref.CategoryWeights[p.Category] >= 0.8 {
			reasons = append(reasons, "preferred category")
		}
		if len(pref.PreferredThemes) > 0 && len(p.Tags) > 0 {
			preferred := s.synonyms.canonical(pref.PreferredThemes)
			for t := range s.synonyms.canonical(p.Tags) {
				if _, ok := preferred[t]; ok {
					reasons = append(reasons, "preferred theme")
					break
				}
			}
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "matches request")
	}
	return reasons
}

func inRegion(p trip.Place, region string) bool {
	if region == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Address), strings.ToLower(strings.TrimSpace(region)))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func popularity(p trip.Place) float64 {
	if p.Popularity == nil {
		return -1
	}
	return *p.Popularity
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
