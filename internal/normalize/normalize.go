package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shifttrack/internal/config"
	"shifttrack/internal/model"
)

// ObservationFields is the raw, transport-level view of one location reading
// before validation.
type ObservationFields struct {
	Timestamp string
	SubjectID string
	Latitude  string
	Longitude string
	Accuracy  string
	Extras    map[string]string
	Raw       string
}

// Normalize validates raw fields into an observation. Coordinates out of
// range or unparseable are an error; a missing subject falls back to the
// configured default, a missing timestamp to now.
func Normalize(fields ObservationFields, cfg *config.Config) (model.Observation, error) {
	subject := strings.TrimSpace(fields.SubjectID)
	if subject == "" {
		subject = cfg.Ingest.Parser.DefaultSubjectID
	}

	lat, err := parseCoordinate(fields.Latitude, -90, 90, "latitude")
	if err != nil {
		return model.Observation{}, err
	}
	lng, err := parseCoordinate(fields.Longitude, -180, 180, "longitude")
	if err != nil {
		return model.Observation{}, err
	}

	var accuracy *float64
	if v := strings.TrimSpace(fields.Accuracy); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse accuracy: %w", err)
		}
		if acc < 0 {
			return model.Observation{}, fmt.Errorf("negative accuracy: %v", acc)
		}
		accuracy = &acc
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}
	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.Observation{
		SubjectID: subject,
		Point: model.GeoPoint{
			Latitude:       lat,
			Longitude:      lng,
			AccuracyMeters: accuracy,
			ObservedAt:     ts,
		},
		Source: "log",
		Raw:    fields.Raw,
	}, nil
}

func parseCoordinate(value string, min, max float64, name string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s out of range: %v", name, v)
	}
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
