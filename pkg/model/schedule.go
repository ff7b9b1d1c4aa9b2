package model

import (
	"fmt"
	"time"
)

// Schedule is a user-defined weekly rule mapping a compute instance to
// start/stop times on selected weekdays. Times are local wall-clock strings
// at minute resolution ("HH:MM", zero-padded); days use the time.Weekday
// convention (0=Sunday .. 6=Saturday).
type Schedule struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	InstanceID string         `json:"instance_id"`
	StartTime  string         `json:"start_time"`
	StopTime   string         `json:"stop_time"`
	Days       []time.Weekday `json:"days"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AppliesOn reports whether the schedule selects the given weekday.
func (s *Schedule) AppliesOn(day time.Weekday) bool {
	for _, d := range s.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Validate checks the schedule fields. The engine matches times by exact
// string equality, so both clock fields must be strictly zero-padded; a
// schedule written as "9:00" would never fire.
func (s *Schedule) Validate() error {
	if s.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if err := ValidateClock(s.StartTime); err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	if err := ValidateClock(s.StopTime); err != nil {
		return fmt.Errorf("stop_time: %w", err)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("days must select at least one weekday")
	}
	for _, d := range s.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}

// ValidateClock checks that s is a zero-padded "HH:MM" wall-clock string.
func ValidateClock(s string) error {
	if len(s) != 5 || s[2] != ':' {
		return fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("invalid time %q (want HH:MM)", s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return fmt.Errorf("invalid time %q (out of range)", s)
	}
	return nil
}

// FormatClock renders t as the zero-padded "HH:MM" string the engine
// compares schedule times against.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
