package schedule

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/neexbeast/tripplanner/internal/trip"
)

var hoursPattern = regexp.MustCompile(`(\d{1,2}:\d{2})\s*[-~]\s*(\d{1,2}:\d{2})`)

// ParseHours extracts the first "HH:MM-HH:MM" or "HH:MM~HH:MM" range from raw.
// A closing time at or before the opening time is read as past midnight.
func ParseHours(raw string) (open, close trip.Clock, ok bool) {
	m := hoursPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, false
	}
	o, err := trip.ParseClock(m[1])
	if err != nil {
		return 0, 0, false
	}
	c, err := trip.ParseClock(m[2])
	if err != nil {
		return 0, 0, false
	}
	if c <= o {
		c += 24 * 60
	}
	return o, c, true
}

var (
	koreanWeekdays  = [...]string{"일", "월", "화", "수", "목", "금", "토"}
	englishWeekdays = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}
	englishDayNames = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
)

// IsClosedOn reports whether a free-text closed-days description covers wd.
// It understands "월요일", "매주 월", standalone "월" tokens and English day
// names or abbreviations.
func IsClosedOn(closedDays string, wd time.Weekday) bool {
	if strings.TrimSpace(closedDays) == "" {
		return false
	}
	kr := koreanWeekdays[wd]
	en := englishWeekdays[wd]
	full := englishDayNames[wd]

	if strings.Contains(closedDays, kr+"요일") || strings.Contains(closedDays, "매주 "+kr) {
		return true
	}

	tokens := strings.FieldsFunc(strings.ToLower(closedDays), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		tok = strings.TrimSuffix(tok, "휴무")
		if tok == kr {
			return true
		}
		if tok == en || tok == full || tok == full+"s" {
			return true
		}
	}
	return false
}
