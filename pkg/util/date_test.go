package util

import (
	"testing"
	"time"
)

func TestTradingDay(t *testing.T) {
	if TradingDay(time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Saturday is not a trading day")
	}
	if !TradingDay(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Monday is a trading day")
	}
}

func TestPrevTradingDaySkipsWeekend(t *testing.T) {
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	got := PrevTradingDay(monday)
	if got.Weekday() != time.Friday || got.Day() != 30 {
		t.Fatalf("expected Friday May 30, got %v", got)
	}
}

func TestVNLocationOffset(t *testing.T) {
	loc := VNLocation()
	_, offset := time.Date(2025, 6, 2, 12, 0, 0, 0, loc).Zone()
	if offset != 7*3600 {
		t.Fatalf("expected +07:00, got offset %d", offset)
	}
}
