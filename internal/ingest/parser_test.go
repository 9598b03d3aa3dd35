package ingest

import "testing"

func TestParsePlainText(t *testing.T) {
	p := NewParser()
	line := "2026-08-30 07:15:00 subject=worker-7 lat=40.7831 lng=-73.9712 accuracy=12"
	fields, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.SubjectID != "worker-7" {
		t.Fatalf("subject: %s", fields.SubjectID)
	}
	if fields.Latitude != "40.7831" || fields.Longitude != "-73.9712" {
		t.Fatalf("coordinates: %s,%s", fields.Latitude, fields.Longitude)
	}
	if fields.Accuracy != "12" {
		t.Fatalf("accuracy: %s", fields.Accuracy)
	}
	if fields.Timestamp == "" {
		t.Fatalf("timestamp missing")
	}
}

func TestParseCSV(t *testing.T) {
	p := NewParser()
	if fields, _ := p.ParseLine("timestamp,subject_id,latitude,longitude,accuracy"); fields != nil {
		t.Fatalf("expected header to return nil")
	}
	fields, err := p.ParseLine("2026-08-30T07:15:00Z,worker-7,40.7831,-73.9712,12")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.SubjectID != "worker-7" || fields.Latitude != "40.7831" {
		t.Fatalf("csv parse mismatch: %+v", fields)
	}
}

func TestParseJSONLine(t *testing.T) {
	p := NewParser()
	line := `{"time":"2026-08-30T07:15:00Z","user":"worker-7","lat":40.7831,"lon":-73.9712,"acc":12}`
	fields, err := p.ParseLine(line)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if fields.SubjectID != "worker-7" {
		t.Fatalf("subject: %s", fields.SubjectID)
	}
	if fields.Latitude != "40.7831" || fields.Longitude != "-73.9712" {
		t.Fatalf("coordinates: %s,%s", fields.Latitude, fields.Longitude)
	}
}

func TestParseBlankLine(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("   ")
	if err != nil || fields != nil {
		t.Fatalf("blank line should yield nothing, got %+v, %v", fields, err)
	}
}
