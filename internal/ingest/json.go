package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"shifttrack/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ObservationFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts", "observed_at")
	fields.SubjectID = firstNonEmpty(fields.Extras, "subject_id", "subject", "user_id", "user", "worker", "device")
	fields.Latitude = firstNonEmpty(fields.Extras, "latitude", "lat")
	fields.Longitude = firstNonEmpty(fields.Extras, "longitude", "lng", "lon")
	fields.Accuracy = firstNonEmpty(fields.Extras, "accuracy_meters", "accuracy_m", "accuracy", "acc")
	return fields
}
