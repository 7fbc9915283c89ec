package types

import "time"

// keyFormat is the calendar-date rendering shared by day and week keys.
const keyFormat = "2006-01-02"

// TimeKeys are the window bucket labels for one event instant.
// Both keys are computed in UTC regardless of the input offset; the
// week key is the date of the Monday of the ISO week.
type TimeKeys struct {
	Day  string
	Week string
}

// DeriveTimeKeys computes the UTC day key and ISO-Monday week key for
// an instant. This is the only time-key computation in the engine;
// window keying must stay deterministic and audit-stable.
func DeriveTimeKeys(t time.Time) TimeKeys {
	u := t.UTC()
	// Weekday is Sunday=0; shift so Monday=0 to find the ISO week start.
	back := (int(u.Weekday()) + 6) % 7
	monday := u.AddDate(0, 0, -back)
	return TimeKeys{
		Day:  u.Format(keyFormat),
		Week: monday.Format(keyFormat),
	}
}
