package marketdata

import (
	"testing"
	"time"
)

// TestIsBusinessDay tests weekday classification.
func TestIsBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"monday", time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), true},
		{"friday", time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusinessDay(tt.date); got != tt.want {
				t.Errorf("IsBusinessDay(%v) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

// TestAddBusinessDays tests weekend skipping in both directions.
func TestAddBusinessDays(t *testing.T) {
	friday := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

	if got := AddBusinessDays(friday, 1); !got.Equal(monday) {
		t.Errorf("AddBusinessDays(friday, 1) = %v, want %v", got, monday)
	}
	if got := AddBusinessDays(monday, -1); !got.Equal(friday) {
		t.Errorf("AddBusinessDays(monday, -1) = %v, want %v", got, friday)
	}

	// Five business days from a Friday land on the next Friday.
	nextFriday := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	if got := AddBusinessDays(friday, 5); !got.Equal(nextFriday) {
		t.Errorf("AddBusinessDays(friday, 5) = %v, want %v", got, nextFriday)
	}

	if got := AddBusinessDays(friday, 0); !got.Equal(friday) {
		t.Errorf("AddBusinessDays(friday, 0) = %v, want %v", got, friday)
	}
}
