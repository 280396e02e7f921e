package workflow

import "time"

const (
	// RateZoneOffset is the fixed civil-time offset (UTC+05:30) rates are reckoned in.
	RateZoneOffset = 5*time.Hour + 30*time.Minute
	RateCutoffHour = 16
	DateLayout     = "2006-01-02"
)

var rateZone = time.FixedZone("UTC+05:30", int(RateZoneOffset/time.Second))

// Gate decides whether mutating actions are currently permitted. Rate updates
// freeze at 16:00 local (UTC+05:30) and reopen at midnight; other kinds are
// never restricted.
type Gate struct{}

func (Gate) IsWriteAllowed(kind Kind, now time.Time) bool {
	if kind != KindRateUpdate {
		return true
	}
	// minutes and seconds never reopen the window once the cutoff hour is reached
	return now.In(rateZone).Hour() < RateCutoffHour
}

// Today is the civil date in the rate zone.
func (Gate) Today(now time.Time) string {
	return now.In(rateZone).Format(DateLayout)
}

// StartOfDay parses a civil date in the rate zone and returns its midnight.
func (Gate) StartOfDay(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, rateZone)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// WindowStatus describes the rate write window around an instant.
type WindowStatus struct {
	Open     bool      `json:"open"`
	NowLocal time.Time `json:"now_local"`
	ClosesAt time.Time `json:"closes_at"`
	OpensAt  time.Time `json:"opens_at"`
}

// Window reports the rate write window containing or following now.
// ClosesAt is today's cutoff; OpensAt is the next midnight when closed, and
// today's midnight otherwise.
func (g Gate) Window(now time.Time) WindowStatus {
	local := now.In(rateZone)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, rateZone)
	st := WindowStatus{
		Open:     g.IsWriteAllowed(KindRateUpdate, now),
		NowLocal: local,
		ClosesAt: midnight.Add(RateCutoffHour * time.Hour),
		OpensAt:  midnight,
	}
	if !st.Open {
		st.OpensAt = midnight.AddDate(0, 0, 1)
	}
	return st
}
