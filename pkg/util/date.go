package util

import "time"

// VNLocation loads Asia/Ho_Chi_Minh, falling back to the fixed +07:00 offset
// when tzdata is unavailable in the runtime image.
func VNLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*3600)
}

// TradingDay reports whether t falls on a HOSE/HNX session day (Mon-Fri).
// Exchange holidays are not modeled; gaps in stored bars cover those.
func TradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevTradingDay steps back to the most recent trading day strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !TradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
