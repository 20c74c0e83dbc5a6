package normalize

import "strings"

// Canonical metric types the assistant knows about. Other types are stored
// as given after normalisation.
const (
	BloodPressure    = "blood_pressure"
	HeartRate        = "heart_rate"
	BloodSugar       = "blood_sugar"
	Weight           = "weight"
	Temperature      = "temperature"
	SleepDuration    = "sleep_duration"
	Steps            = "steps"
	OxygenSaturation = "oxygen_saturation"
)

// KnownMetricTypes lists the canonical metric types used for spelling
// correction.
var KnownMetricTypes = []string{
	BloodPressure,
	HeartRate,
	BloodSugar,
	Weight,
	Temperature,
	SleepDuration,
	Steps,
	OxygenSaturation,
}

var synonyms = map[string]string{
	"bp":            BloodPressure,
	"pressure":      BloodPressure,
	"pulse":         HeartRate,
	"hr":            HeartRate,
	"heartrate":     HeartRate,
	"glucose":       BloodSugar,
	"blood_glucose": BloodSugar,
	"sugar":         BloodSugar,
	"sleep":         SleepDuration,
	"sleep_hours":   SleepDuration,
	"temp":          Temperature,
	"body_temp":     Temperature,
	"spo2":          OxygenSaturation,
	"oxygen":        OxygenSaturation,
	"step_count":    Steps,
	"body_weight":   Weight,
}

var defaultUnits = map[string]string{
	BloodPressure:    "mmHg",
	HeartRate:        "bpm",
	SleepDuration:    "hours",
	Steps:            "steps",
	OxygenSaturation: "%",
}

// compositeSubtypes labels the two halves of a composite reading, in the
// order they are written.
var compositeSubtypes = map[string][2]string{
	BloodPressure: {"systolic", "diastolic"},
}

var metricMatcher = newMatcher()

// CanonicalMetricType normalises a metric type name: lower-cased, spaces and
// hyphens folded to underscores, common synonyms mapped, and near-miss
// spellings of known types corrected. A name with extra or different words,
// such as "heart_rate_variability" or "blood_ketones", is a different metric
// and comes back normalised but otherwise unchanged.
func CanonicalMetricType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")

	if canon, ok := synonyms[s]; ok {
		return canon
	}
	for _, known := range KnownMetricTypes {
		if s == known {
			return s
		}
	}
	if corrected, ok := metricMatcher.match(s, KnownMetricTypes); ok {
		return corrected
	}
	return s
}

// DefaultUnit returns the unit implied by a canonical metric type, or "" when
// the type has no single obvious unit (weight, temperature, blood sugar).
func DefaultUnit(metricType string) string {
	return defaultUnits[metricType]
}

// CompositeSubtypes returns the subtype labels for the two halves of a
// composite reading of metricType. ok is false for types that are not
// recorded as composites.
func CompositeSubtypes(metricType string) (first, second string, ok bool) {
	labels, ok := compositeSubtypes[metricType]
	if !ok {
		return "", "", false
	}
	return labels[0], labels[1], true
}
