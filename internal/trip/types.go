package trip

import (
	"github.com/neexbeast/tripplanner/internal/geo"
)

// Place categories known to the planner. Category is an open string; anything
// else is treated as CategoryOther for defaults.
const (
	CategorySightseeing = "sightseeing"
	CategoryCafe        = "cafe"
	CategoryRestaurant  = "restaurant"
	CategoryNature      = "nature"
	CategoryShopping    = "shopping"
	CategoryExperience  = "experience"
	CategoryMuseum      = "museum"
	CategoryExhibit     = "exhibit"
	CategoryPark        = "park"
	CategoryOther       = "other"
)

// Place is read-only reference data owned by the upstream place store.
type Place struct {
	ID             int      `json:"place_id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Address        string   `json:"address,omitempty"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Tags           []string `json:"tags,omitempty"`
	OperatingHours string   `json:"operating_hours,omitempty"`
	ClosedDays     string   `json:"closed_days,omitempty"`
	FeeInfo        string   `json:"fee_info,omitempty"`
	Description    string   `json:"description,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	Popularity     *float64 `json:"popularity,omitempty"`
}

// Point returns the place coordinate.
func (p Place) Point() geo.Point {
	return geo.Point{Lat: p.Latitude, Lng: p.Longitude}
}

// Candidate is a request-scoped scored wrapper around a Place.
type Candidate struct {
	Place
	RelevanceScore  float64  `json:"relevance_score"`
	PreferenceScore float64  `json:"preference_score"`
	FinalScore      float64  `json:"final_score"`
	MustVisit       bool     `json:"must_visit,omitempty"`
	MatchReasons    []string `json:"match_reasons,omitempty"`
}

// TransportMode is how a traveller gets from the previous stop.
type TransportMode string

const (
	ModeWalk          TransportMode = "walk"
	ModePublicTransit TransportMode = "public_transit"
	ModeCar           TransportMode = "car"
)

// Stop is one visit within a day. The route optimizer fills order and travel
// fields; the scheduler fills ArrivalTime and StayMinutes.
type Stop struct {
	Candidate
	DayNumber     int           `json:"day_number"`
	OrderIndex    int           `json:"order_index"`
	ArrivalTime   *Clock        `json:"arrival_time,omitempty"`
	StayMinutes   int           `json:"stay_duration"`
	TravelMinutes *int          `json:"travel_time_from_prev"`
	TransportMode TransportMode `json:"transport_mode,omitempty"`
	Reason        string        `json:"selection_reason,omitempty"`
	NightOnly     bool          `json:"night_only,omitempty"`

	// SuggestedStay is the draft generator's stay hint in minutes (0 = none).
	SuggestedStay int `json:"-"`
	// LegFrom is the place the travel fields were measured from (0 = none).
	LegFrom int `json:"-"`
}

// DayPlan is the finalized, ordered sequence of stops for one day.
type DayPlan struct {
	DayNumber   int    `json:"day_number"`
	Date        Date   `json:"date"`
	Theme       string `json:"theme,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Stops       []Stop `json:"stops"`
	TotalPlaces int    `json:"total_places"`
	TotalTravel int    `json:"total_travel_time"`
}

// TripRequest is an accepted, immutable generation request.
type TripRequest struct {
	Title           string     `json:"title,omitempty"`
	Region          string     `json:"region"`
	StartDate       Date       `json:"start_date"`
	EndDate         Date       `json:"end_date"`
	MaxPlacesPerDay int        `json:"max_places_per_day,omitempty"`
	MustVisit       []int      `json:"must_visit_places,omitempty"`
	Exclude         []int      `json:"exclude_places,omitempty"`
	Themes          []string   `json:"themes,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	StartLocation   *geo.Point `json:"start_location,omitempty"`
	EndLocation     *geo.Point `json:"end_location,omitempty"`
}

// Days returns the inclusive trip length in calendar days.
func (r TripRequest) Days() int {
	return r.StartDate.DaysUntil(r.EndDate) + 1
}

// Pace controls stay length and inter-stop buffer.
type Pace string

const (
	PaceRelaxed  Pace = "relaxed"
	PaceModerate Pace = "moderate"
	PacePacked   Pace = "packed"
)

// Preference is a long-lived, read-only user preference profile.
type Preference struct {
	CategoryWeights map[string]float64 `json:"category_weights,omitempty"`
	PreferredThemes []string           `json:"preferred_themes,omitempty"`
	Pace            Pace               `json:"travel_pace,omitempty"`
	BudgetLevel     string             `json:"budget_level,omitempty"`
	DayStart        *Clock             `json:"preferred_start_time,omitempty"`
	DayEnd          *Clock             `json:"preferred_end_time,omitempty"`
}

// Warning kinds.
const (
	WarnClosedDay    = "closed_day"
	WarnAfterClosing = "after_closing"
	WarnPastDayEnd   = "past_day_end"
	WarnMealWindow   = "meal_window"
	WarnCapacity     = "capacity"
)

// Warning is a non-fatal constraint violation surfaced to the user.
type Warning struct {
	Day     int    `json:"day"`
	PlaceID int    `json:"place_id,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Itinerary is the assembled generation result.
type Itinerary struct {
	TripID            int64     `json:"trip_id"`
	GenerationID      string    `json:"generation_id,omitempty"`
	Title             string    `json:"title,omitempty"`
	Region            string    `json:"region"`
	StartDate         Date      `json:"start_date"`
	EndDate           Date      `json:"end_date"`
	Days              []DayPlan `json:"days"`
	TotalDays         int       `json:"total_days"`
	TotalPlaces       int       `json:"total_places"`
	TotalTravel       int       `json:"total_travel_time"`
	OptimizationScore float64   `json:"optimization_score"`
	TripSummary       string    `json:"trip_summary"`
	Warnings          []Warning `json:"warnings,omitempty"`
	GenerationMethod  string    `json:"generation_method"`
}
