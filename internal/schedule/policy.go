package schedule

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neexbeast/tripplanner/internal/trip"
)

// Pacing is the per-pace stay multiplier and inter-stop buffer.
type Pacing struct {
	StayMultiplier float64 `yaml:"stay_multiplier"`
	BufferMinutes  int     `yaml:"buffer_minutes"`
}

// Policy holds every time-of-day rule the scheduler applies.
type Policy struct {
	DayStart trip.Clock
	DayEnd   trip.Clock

	LunchStart  trip.Clock
	LunchEnd    trip.Clock
	DinnerStart trip.Clock
	// DinnerLead is how far before DinnerStart a late lunch-slot meal is
	// still moved to dinner instead of being treated as a violation.
	DinnerLead int
	NightStart trip.Clock

	// MorningCap bounds how many non-meal stops go before lunch.
	MorningCap int

	MinSuggestedStay int
	MaxSuggestedStay int
	DefaultStay      int
	StayMinutes      map[string]int

	Pace        map[trip.Pace]Pacing
	DefaultPace trip.Pace

	NightKeywords        []string
	NeverNightCategories []string
}

// DefaultPolicy returns the built-in scheduling rules.
func DefaultPolicy() Policy {
	return Policy{
		DayStart:    trip.At(9, 0),
		DayEnd:      trip.At(23, 0),
		LunchStart:  trip.At(12, 0),
		LunchEnd:    trip.At(14, 0),
		DinnerStart: trip.At(18, 30),
		DinnerLead:  90,
		NightStart:  trip.At(20, 0),
		MorningCap:  2,

		MinSuggestedStay: 15,
		MaxSuggestedStay: 300,
		DefaultStay:      60,
		StayMinutes: map[string]int{
			trip.CategorySightseeing: 90,
			trip.CategoryCafe:        45,
			trip.CategoryRestaurant:  60,
			trip.CategoryNature:      120,
			trip.CategoryShopping:    60,
			trip.CategoryExperience:  90,
			trip.CategoryMuseum:      90,
			trip.CategoryExhibit:     60,
			trip.CategoryPark:        60,
		},

		Pace: map[trip.Pace]Pacing{
			trip.PaceRelaxed:  {StayMultiplier: 1.3, BufferMinutes: 30},
			trip.PaceModerate: {StayMultiplier: 1.0, BufferMinutes: 15},
			trip.PacePacked:   {StayMultiplier: 0.8, BufferMinutes: 10},
		},
		DefaultPace: trip.PaceModerate,

		NightKeywords: []string{
			"야경", "야간", "루프탑", "야시장", "불꽃", "일몰", "노을",
			"night", "rooftop", "fireworks", "sunset",
		},
		NeverNightCategories: []string{
			trip.CategoryMuseum,
			trip.CategoryExhibit,
			trip.CategoryExperience,
			trip.CategoryPark,
			trip.CategoryRestaurant,
			trip.CategoryCafe,
		},
	}
}

// Validate checks that the windows are ordered and the pace table is usable.
func (p Policy) Validate() error {
	if p.DayStart >= p.DayEnd {
		return fmt.Errorf("day_start %s must be before day_end %s", p.DayStart, p.DayEnd)
	}
	if p.LunchStart >= p.LunchEnd || p.LunchEnd > p.DinnerStart {
		return fmt.Errorf("lunch window %s-%s must end before dinner at %s", p.LunchStart, p.LunchEnd, p.DinnerStart)
	}
	if p.DinnerLead < 0 {
		return errors.New("dinner_lead_minutes must not be negative")
	}
	if p.MinSuggestedStay > p.MaxSuggestedStay {
		return errors.New("min_suggested_stay must not exceed max_suggested_stay")
	}
	if _, ok := p.Pace[p.DefaultPace]; !ok {
		return fmt.Errorf("default pace %q has no pacing entry", p.DefaultPace)
	}
	for pace, pc := range p.Pace {
		if pc.StayMultiplier <= 0 || pc.BufferMinutes < 0 {
			return fmt.Errorf("pace %q: stay_multiplier must be positive and buffer_minutes non-negative", pace)
		}
	}
	return nil
}

// pacing returns the pacing entry for pace, falling back to DefaultPace.
func (p Policy) pacing(pace trip.Pace) Pacing {
	if pc, ok := p.Pace[pace]; ok {
		return pc
	}
	return p.Pace[p.DefaultPace]
}

// policyFile is the YAML overlay. Absent keys keep their defaults.
type policyFile struct {
	DayStart    string `yaml:"day_start"`
	DayEnd      string `yaml:"day_end"`
	LunchStart  string `yaml:"lunch_start"`
	LunchEnd    string `yaml:"lunch_end"`
	DinnerStart string `yaml:"dinner_start"`
	DinnerLead  *int   `yaml:"dinner_lead_minutes"`
	NightStart  string `yaml:"night_start"`
	MorningCap  *int   `yaml:"morning_cap"`

	MinSuggestedStay *int           `yaml:"min_suggested_stay"`
	MaxSuggestedStay *int           `yaml:"max_suggested_stay"`
	DefaultStay      *int           `yaml:"default_stay"`
	StayMinutes      map[string]int `yaml:"stay_minutes"`

	Pace        map[string]Pacing `yaml:"pace"`
	DefaultPace string            `yaml:"default_pace"`

	NightKeywords        []string `yaml:"night_keywords"`
	NeverNightCategories []string `yaml:"never_night_categories"`
}

// ParsePolicy overlays YAML onto DefaultPolicy and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Policy{}, fmt.Errorf("decoding policy yaml: %w", err)
	}

	p := DefaultPolicy()

	clocks := []struct {
		name string
		raw  string
		dst  *trip.Clock
	}{
		{"day_start", f.DayStart, &p.DayStart},
		{"day_end", f.DayEnd, &p.DayEnd},
		{"lunch_start", f.LunchStart, &p.LunchStart},
		{"lunch_end", f.LunchEnd, &p.LunchEnd},
		{"dinner_start", f.DinnerStart, &p.DinnerStart},
		{"night_start", f.NightStart, &p.NightStart},
	}
	for _, c := range clocks {
		if c.raw == "" {
			continue
		}
		v, err := trip.ParseClock(c.raw)
		if err != nil {
			return Policy{}, fmt.Errorf("policy %s: %w", c.name, err)
		}
		*c.dst = v
	}

	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setInt(&p.DinnerLead, f.DinnerLead)
	setInt(&p.MorningCap, f.MorningCap)
	setInt(&p.MinSuggestedStay, f.MinSuggestedStay)
	setInt(&p.MaxSuggestedStay, f.MaxSuggestedStay)
	setInt(&p.DefaultStay, f.DefaultStay)

	for category, minutes := range f.StayMinutes {
		p.StayMinutes[category] = minutes
	}
	for pace, pc := range f.Pace {
		p.Pace[trip.Pace(pace)] = pc
	}
	if f.DefaultPace != "" {
		p.DefaultPace = trip.Pace(f.DefaultPace)
	}
	if f.NightKeywords != nil {
		p.NightKeywords = f.NightKeywords
	}
	if f.NeverNightCategories != nil {
		p.NeverNightCategories = f.NeverNightCategories
	}

	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// LoadPolicyFile reads and parses a YAML policy file.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy file: %w", err)
	}
	return ParsePolicy(data)
}
