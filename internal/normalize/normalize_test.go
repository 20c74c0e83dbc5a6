package normalize

import (
	"slices"
	"testing"
	"time"
)

var ref = time.Date(2025, time.January, 1, 7, 42, 9, 0, time.Local)

func TestResolveDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"today", "2025-01-01"},
		{"Yesterday", "2024-12-31"},
		{"TOMORROW", "2025-01-02"},
		{" today ", "2025-01-01"},
		{"2025-01-05", "2025-01-05"},
		{"last week", "last week"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ResolveDate(tt.in, ref); got != tt.want {
			t.Errorf("ResolveDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveDate_UsesReferenceLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+14", 14*3600)
	r := time.Date(2025, time.March, 1, 0, 30, 0, 0, loc)
	if got := ResolveDate("yesterday", r); got != "2025-02-28" {
		t.Errorf("ResolveDate(yesterday) = %q, want 2025-02-28", got)
	}
}

func TestResolveTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"evening", "18:00:00"},
		{"this Morning", "09:00:00"},
		{"late afternoon", "14:00:00"},
		{"last night", "21:00:00"},
		{"night or morning", "21:00:00"},
		{"now", "07:42:09"},
		{" NOW ", "07:42:09"},
		{"", "07:42:09"},
		{"08:15:00", "08:15:00"},
		{"at lunch", "at lunch"},
	}
	for _, tt := range tests {
		if got := ResolveTime(tt.in, ref); got != tt.want {
			t.Errorf("ResolveTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitComposite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   []string
		wantOK bool
	}{
		{"120/80", []string{"120", "80"}, true},
		{" 120 / 80 ", []string{"120", "80"}, true},
		{"118.5/79.5", []string{"118.5", "79.5"}, true},
		{"120", nil, false},
		{"abc/80", nil, false},
		{"120/", nil, false},
		{"/80", nil, false},
		{"120/80/60", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, ok := SplitComposite(tt.in, DefaultSeparator)
		if ok != tt.wantOK || !slices.Equal(got, tt.want) {
			t.Errorf("SplitComposite(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSplitComposite_CustomSeparator(t *testing.T) {
	t.Parallel()

	got, ok := SplitComposite("120:80", ":")
	if !ok || !slices.Equal(got, []string{"120", "80"}) {
		t.Errorf("SplitComposite(120:80, :) = %v, %v", got, ok)
	}
	if _, ok := SplitComposite("120/80", ""); !ok {
		t.Error("empty separator should fall back to DefaultSeparator")
	}
}

func TestOrderRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		start, end         string
		wantStart, wantEnd string
	}{
		{"2025-01-01", "2025-01-31", "2025-01-01", "2025-01-31"},
		{"2025-01-31", "2025-01-01", "2025-01-01", "2025-01-31"},
		{"2025-01-05", "", "2025-01-05", ""},
		{"last week", "2025-01-01", "last week", "2025-01-01"},
	}
	for _, tt := range tests {
		s, e := OrderRange(tt.start, tt.end)
		if s != tt.wantStart || e != tt.wantEnd {
			t.Errorf("OrderRange(%q, %q) = %q, %q; want %q, %q", tt.start, tt.end, s, e, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestCanonicalMetricType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"blood_pressure", BloodPressure},
		{"Blood Pressure", BloodPressure},
		{"blood-pressure", BloodPressure},
		{"BP", BloodPressure},
		{"pulse", HeartRate},
		{"Heart Rate", HeartRate},
		{"glucose", BloodSugar},
		{"sleep", SleepDuration},
		{"temp", Temperature},
		{"wieght", Weight},
		{"temprature", Temperature},
		{"blod presure", BloodPressure},
		{"hart rate", HeartRate},
		{"blood sugr", BloodSugar},
		{"mood", "mood"},
		{"Water  Intake", "water_intake"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalMetricType(tt.in); got != tt.want {
			t.Errorf("CanonicalMetricType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalMetricType_KeepsDistinctMetrics(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"blood_ketones",
		"blood_oxygen",
		"heart_rate_variability",
		"heart_rhythm",
		"sleep_quality",
		"sleep_score",
		"sleep_debt",
		"weight_loss",
		"stress",
	} {
		if got := CanonicalMetricType(in); got != in {
			t.Errorf("CanonicalMetricType(%q) = %q, want it unchanged", in, got)
		}
	}
}

func TestMatcher_RequiresTokenwiseMatch(t *testing.T) {
	t.Parallel()

	m := newMatcher()
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"blod_presure", BloodPressure, true},
		{"wieght", Weight, true},
		{"blood", "", false},
		{"blood_pressure_cuff", "", false},
		{"blood_ketones", "", false},
	}
	for _, tt := range tests {
		got, ok := m.match(tt.name, KnownMetricTypes)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("match(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDefaultUnit(t *testing.T) {
	t.Parallel()

	if got := DefaultUnit(BloodPressure); got != "mmHg" {
		t.Errorf("DefaultUnit(blood_pressure) = %q, want mmHg", got)
	}
	if got := DefaultUnit(HeartRate); got != "bpm" {
		t.Errorf("DefaultUnit(heart_rate) = %q, want bpm", got)
	}
	if got := DefaultUnit(Weight); got != "" {
		t.Errorf("DefaultUnit(weight) = %q, want empty", got)
	}
}

func TestCompositeSubtypes(t *testing.T) {
	t.Parallel()

	first, second, ok := CompositeSubtypes(BloodPressure)
	if !ok || first != "systolic" || second != "diastolic" {
		t.Errorf("CompositeSubtypes(blood_pressure) = %q, %q, %v", first, second, ok)
	}
	if _, _, ok := CompositeSubtypes(Weight); ok {
		t.Error("weight must not be composite")
	}
}
