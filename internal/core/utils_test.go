package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-07-15", "2024-07-15", false},
		{"2023-01-01", "2023-01-01", false},
		{"invalid", "", true},
		{"07/15/2024", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(APIDateFmt) != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got.Format(APIDateFmt), tt.want)
			}
		})
	}
}

func TestParseDateSpec(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, loc)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"today", "today", "2024-07-15", false},
		{"yesterday", "yesterday", "2024-07-14", false},
		{"exact date", "2024-05-01", "2024-05-01", false},
		{"month/day past", "7/1", "2024-07-01", false},
		{"month/day wraps to last year", "12/25", "2023-12-25", false},
		{"relative d-1", "d-1", "2024-07-14", false},
		{"relative w-1", "w-1", "2024-07-08", false},
		{"relative m-1", "m-1", "2024-06-15", false},
		{"relative y-1", "y-1", "2023-07-15", false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateSpecAt(tt.input, now, loc)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDateSpec(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(APIDateFmt) != tt.want {
				t.Errorf("ParseDateSpec(%q) = %v, want %v", tt.input, got.Format(APIDateFmt), tt.want)
			}
		})
	}
}

func TestParseDateSpecUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 20:00 UTC on the 15th is already the 16th in Tokyo
	now := time.Date(2024, 7, 15, 20, 0, 0, 0, time.UTC)
	got, err := ParseDateSpecAt("today", now, tokyo)
	if err != nil {
		t.Fatalf("ParseDateSpec() error = %v", err)
	}
	if FormatDate(got) != "2024-07-16" {
		t.Errorf("ParseDateSpec(today) = %s, want 2024-07-16", FormatDate(got))
	}
}

func TestParseWeekSpec(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"ISO week format", "2024-W01", "2024-01-01", "2024-01-07", false},
		{"ISO week format W28", "2024-W28", "2024-07-08", "2024-07-14", false},
		{"invalid format", "invalid", "", "", true},
		{"week out of range", "2024-W54", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseWeekSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseWeekSpec(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if start.Format(APIDateFmt) != tt.wantStart {
					t.Errorf("ParseWeekSpec(%q) start = %v, want %v", tt.input, start.Format(APIDateFmt), tt.wantStart)
				}
				if end.Format(APIDateFmt) != tt.wantEnd {
					t.Errorf("ParseWeekSpec(%q) end = %v, want %v", tt.input, end.Format(APIDateFmt), tt.wantEnd)
				}
			}
		})
	}
}

func TestGetDateRange(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 7, 17, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"today", "2024-07-17", "2024-07-17", false},
		{"yesterday", "2024-07-16", "2024-07-16", false},
		{"this-week", "2024-07-15", "2024-07-21", false},
		{"last-week", "2024-07-08", "2024-07-14", false},
		{"this-month", "2024-07-01", "2024-07-31", false},
		{"last-month", "2024-06-01", "2024-06-30", false},
		{"invalid-period", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := GetDateRange(tt.period, now, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetDateRange(%q) error = %v, wantErr %v", tt.period, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if FormatDate(start) != tt.wantStart || FormatDate(end) != tt.wantEnd {
				t.Errorf("GetDateRange(%q) = %s..%s, want %s..%s", tt.period, FormatDate(start), FormatDate(end), tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestAddDays(t *testing.T) {
	got, err := AddDays("2024-02-28", 2)
	if err != nil {
		t.Fatalf("AddDays() error = %v", err)
	}
	if got != "2024-03-01" {
		t.Errorf("AddDays() = %s, want 2024-03-01", got)
	}
	if _, err := AddDays("nope", 1); err == nil {
		t.Error("AddDays() expected error for malformed date")
	}
}

func TestDaysInRange(t *testing.T) {
	start, _ := ParseDate("2024-07-30")
	end, _ := ParseDate("2024-08-02")
	days := DaysInRange(start, end)
	if len(days) != 4 {
		t.Fatalf("DaysInRange() returned %d days, want 4", len(days))
	}
	if FormatDate(days[3]) != "2024-08-02" {
		t.Errorf("last day = %s, want 2024-08-02", FormatDate(days[3]))
	}
}

func TestGetTZ(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"America/New_York", "America/New_York"},
		{"UTC", "UTC"},
		{"", DefaultTZ},
		{"Not/AZone", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := GetTZ(tt.name)
			if loc.String() != tt.want {
				t.Errorf("GetTZ(%q) = %v, want %v", tt.name, loc.String(), tt.want)
			}
		})
	}
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := Invalid("amountMl", "must be positive, got %d", -5)
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}
	if !IsValidation(err) {
		t.Error("IsValidation() = false, want true")
	}
	if err.Error() != "invalid amountMl: must be positive, got -5" {
		t.Errorf("Error() = %q", err.Error())
	}
}
