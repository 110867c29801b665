package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/neexbeast/tripplanner/internal/trip"
)

// ErrMalformedResponse marks a draft whose body could not be read as the
// expected JSON shape. These failures are retryable; transport errors are not.
var ErrMalformedResponse = errors.New("malformed draft response")

// Generator proposes a day-by-day assignment of candidates.
type Generator interface {
	GenerateDraft(ctx context.Context, req Request) (Response, error)
}

// Request is everything the generator needs to propose a draft.
type Request struct {
	Region          string
	StartDate       trip.Date
	EndDate         trip.Date
	Days            int
	MaxPlacesPerDay int
	Candidates      []trip.Candidate
	Preference      *trip.Preference
}

// PlaceEntry is one proposed visit.
type PlaceEntry struct {
	PlaceID      int    `json:"place_id"`
	Order        int    `json:"order"`
	StayDuration int    `json:"stay_duration"`
	IsNight      bool   `json:"is_night"`
	Reason       string `json:"reason"`
}

// Day is one proposed day.
type Day struct {
	DayNumber int          `json:"day_number"`
	Theme     string       `json:"theme"`
	Places    []PlaceEntry `json:"places"`
}

// Response is the generator's proposal.
type Response struct {
	Days         []Day             `json:"days"`
	TripSummary  string            `json:"trip_summary"`
	DaySummaries map[string]string `json:"day_summaries"`
}

// DaySummary returns the summary for day n, if any.
func (r Response) DaySummary(n int) string {
	return r.DaySummaries[fmt.Sprint(n)]
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// ParseResponse decodes a generator reply. Markdown code fences are stripped,
// and when the reply carries prose around the JSON the outermost object is
// extracted. Errors wrap ErrMalformedResponse.
func ParseResponse(text string) (Response, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
	}

	var resp Response
	err := json.Unmarshal([]byte(text), &resp)
	if err != nil {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return Response{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
		}
		resp = Response{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	if len(resp.Days) == 0 {
		return Response{}, fmt.Errorf("%w: no days", ErrMalformedResponse)
	}
	return resp, nil
}

const (
	minPromptPlacesPerDay = 8
	minPromptTarget       = 30
	minPromptOthers       = 10
)

// SelectCandidates picks the candidates listed in the prompt: every must-visit
// candidate, then the best others up to max(8*days, 30) in total, never fewer
// than ten others.
func SelectCandidates(cands []trip.Candidate, days int) []trip.Candidate {
	var must, others []trip.Candidate
	for _, c := range cands {
		if c.MustVisit {
			must = append(must, c)
		} else {
			others = append(others, c)
		}
	}
	target := max(days*minPromptPlacesPerDay, minPromptTarget)
	limit := max(target-len(must), minPromptOthers)
	if len(others) > limit {
		others = others[:limit]
	}
	return append(must, others...)
}

var paceDescriptions = map[trip.Pace]string{
	trip.PaceRelaxed:  "relaxed (plenty of time per place)",
	trip.PaceModerate: "moderate",
	trip.PacePacked:   "packed (as many places as possible)",
}

// preferenceSummary renders the parts of a preference the generator can use.
func preferenceSummary(pref *trip.Preference) string {
	if pref == nil {
		return "none (use defaults)"
	}
	var lines []string
	if len(pref.PreferredThemes) > 0 {
		lines = append(lines, "- preferred themes: "+strings.Join(pref.PreferredThemes, ", "))
	}
	var liked []string
	for cat, w := range pref.CategoryWeights {
		if w >= 0.8 {
			liked = append(liked, cat)
		}
	}
	if len(liked) > 0 {
		sort.Strings(liked)
		lines = append(lines, "- preferred categories: "+strings.Join(liked, ", "))
	}
	if pref.Pace != "" {
		desc, ok := paceDescriptions[pref.Pace]
		if !ok {
			desc = string(pref.Pace)
		}
		lines = append(lines, "- pace: "+desc)
	}
	if len(lines) == 0 {
		return "defaults"
	}
	return strings.Join(lines, "\n")
}

func candidateLine(c trip.Candidate) string {
	var b strings.Builder
	tags := c.Tags
	if len(tags) > 5 {
		tags = tags[:5]
	}
	fmt.Fprintf(&b, "- ID: %d, name: %s, category: %s, tags: [%s], score: %.2f",
		c.ID, c.Name, c.Category, strings.Join(tags, ", "), c.FinalScore)
	if c.Popularity != nil && *c.Popularity > 0 {
		fmt.Fprintf(&b, ", popularity: %.0f", *c.Popularity)
	}
	if c.Description != "" {
		desc := []rune(c.Description)
		if len(desc) > 40 {
			desc = desc[:40]
		}
		fmt.Fprintf(&b, ", about: %s...", string(desc))
	}
	if c.MustVisit {
		b.WriteString(" [MUST VISIT]")
	}
	return b.String()
}

const systemPrompt = "You are a travel itinerary planner. Reply with JSON only."

const responseShape = `{
  "days": [
    {
      "day_number": 1,
      "theme": "theme of the day",
      "places": [
        {"place_id": 123, "order": 1, "stay_duration": 60, "is_night": false, "reason": "why this place"}
      ]
    }
  ],
  "trip_summary": "one or two sentences",
  "day_summaries": {"1": "summary of day 1"}
}`

// BuildPrompt renders the user prompt for req.
func BuildPrompt(req Request) string {
	selected := SelectCandidates(req.Candidates, req.Days)

	var mustNames []string
	lines := make([]string, 0, len(selected))
	for _, c := range selected {
		if c.MustVisit {
			mustNames = append(mustNames, c.Name)
		}
		lines = append(lines, candidateLine(c))
	}
	must := "none"
	if len(mustNames) > 0 {
		must = strings.Join(mustNames, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan a %d-day trip using only the candidate places below.\n\n", req.Days)
	fmt.Fprintf(&b, "## Trip\n- region: %s\n- dates: %s ~ %s (%d days)\n- max places per day: %d\n\n",
		req.Region, req.StartDate, req.EndDate, req.Days, req.MaxPlacesPerDay)
	fmt.Fprintf(&b, "## Preferences\n%s\n\n", preferenceSummary(req.Preference))
	fmt.Fprintf(&b, "## Must visit\n%s\n\n", must)
	fmt.Fprintf(&b, "## Candidates\n%s\n\n", strings.Join(lines, "\n"))
	b.WriteString("## Rules\n")
	b.WriteString("1. Use each place at most once across the whole trip.\n")
	b.WriteString("2. Group nearby places on the same day.\n")
	b.WriteString("3. Mix categories: sights, then a meal, then a cafe and so on.\n")
	b.WriteString("4. At most two restaurants per day, one for lunch and one for dinner.\n")
	b.WriteString("5. Night views and other after-dark places go last in the day; mark them is_night.\n")
	b.WriteString("6. Every must-visit place must appear exactly once.\n\n")
	fmt.Fprintf(&b, "## Reply format (JSON only)\n%s\n", responseShape)
	return b.String()
}
