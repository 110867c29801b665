package trip

import (
	"errors"
	"fmt"
)

var (
	// ErrStopNotFound is returned when an edit targets a place that is not in the day.
	ErrStopNotFound = errors.New("stop not found")
	// ErrDuplicateStop is returned when inserting a place that is already in the day.
	ErrDuplicateStop = errors.New("stop already present")
)

// Renumber assigns OrderIndex 1..n in slice order and stamps the day number.
func Renumber(day int, stops []Stop) {
	for i := range stops {
		stops[i].DayNumber = day
		stops[i].OrderIndex = i + 1
	}
}

// clampPosition converts a 1-based position into a slice index within [0, n].
func clampPosition(position, n int) int {
	idx := position - 1
	if idx < 0 {
		return 0
	}
	if idx > n {
		return n
	}
	return idx
}

func indexOf(stops []Stop, placeID int) int {
	for i := range stops {
		if stops[i].ID == placeID {
			return i
		}
	}
	return -1
}

// InsertStop returns a copy of stops with s inserted at the 1-based position.
// Positions past the end append.
func InsertStop(stops []Stop, s Stop, position int) ([]Stop, error) {
	if indexOf(stops, s.ID) >= 0 {
		return nil, fmt.Errorf("inserting place %d: %w", s.ID, ErrDuplicateStop)
	}
	idx := clampPosition(position, len(stops))

	out := make([]Stop, 0, len(stops)+1)
	out = append(out, stops[:idx]...)
	out = append(out, s)
	out = append(out, stops[idx:]...)
	return out, nil
}

// RemoveStop returns a copy of stops without placeID.
func RemoveStop(stops []Stop, placeID int) ([]Stop, error) {
	idx := indexOf(stops, placeID)
	if idx < 0 {
		return nil, fmt.Errorf("removing place %d: %w", placeID, ErrStopNotFound)
	}

	out := make([]Stop, 0, len(stops)-1)
	out = append(out, stops[:idx]...)
	out = append(out, stops[idx+1:]...)
	return out, nil
}

// MoveStop returns a copy of stops with placeID moved to the 1-based position.
func MoveStop(stops []Stop, placeID, position int) ([]Stop, error) {
	idx := indexOf(stops, placeID)
	if idx < 0 {
		return nil, fmt.Errorf("moving place %d: %w", placeID, ErrStopNotFound)
	}
	s := stops[idx]

	rest, err := RemoveStop(stops, placeID)
	if err != nil {
		return nil, err
	}
	return InsertStop(rest, s, position)
}
