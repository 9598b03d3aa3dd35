package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"

	"shifttrack/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns one transport line into raw observation fields. JSON objects,
// CSV records (with or without a header) and timestamp-prefixed key=value
// lines are accepted; trackers in the field speak all three.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.ObservationFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	ts, rest := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.SubjectID = firstNonEmpty(kv, "subject_id", "subject", "user_id", "user", "worker", "device")
	fields.Latitude = firstNonEmpty(kv, "latitude", "lat")
	fields.Longitude = firstNonEmpty(kv, "longitude", "lng", "lon")
	fields.Accuracy = firstNonEmpty(kv, "accuracy_meters", "accuracy_m", "accuracy", "acc")
	for k, v := range kv {
		fields.Extras[k] = v
	}

	if fields.SubjectID == "" && rest != "" {
		tokens := strings.Fields(rest)
		if len(tokens) > 0 && !strings.Contains(tokens[0], "=") {
			fields.SubjectID = tokens[0]
		}
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.ObservationFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
		return fields, nil
	}
	// positional fallback: timestamp, subject, latitude, longitude, accuracy
	if len(record) >= 1 {
		fields.Timestamp = record[0]
	}
	if len(record) >= 2 {
		fields.SubjectID = record[1]
	}
	if len(record) >= 3 {
		fields.Latitude = record[2]
	}
	if len(record) >= 4 {
		fields.Longitude = record[3]
	}
	if len(record) >= 5 {
		fields.Accuracy = record[4]
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "timestamp", "time", "ts", "subject", "subject_id", "user_id", "lat", "latitude", "lng", "lon", "longitude", "accuracy":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.ObservationFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts", "observed_at":
		fields.Timestamp = value
	case "subject_id", "subject", "user_id", "user", "worker", "device":
		fields.SubjectID = value
	case "latitude", "lat":
		fields.Latitude = value
	case "longitude", "lng", "lon":
		fields.Longitude = value
	case "accuracy_meters", "accuracy_m", "accuracy", "acc":
		fields.Accuracy = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
