package appointments

import (
	"encoding/json"
	"math"
	"strings"
)

// Validate checks a create payload field by field. Every failing check is
// reported, in field order, so clients can render all problems at once.
func Validate(p Payload) (bool, []string) {
	if p == nil {
		return false, []string{"Appointment data must be an object"}
	}

	var errs []string

	errs = append(errs, checkText(p, "patientName", "Patient name")...)

	if msg := checkFormatted(p, "date", "Date", "Date must be in YYYY-MM-DD format", func(v string) bool {
		_, err := parseDate(v)
		return err == nil
	}); msg != "" {
		errs = append(errs, msg)
	}

	if msg := checkFormatted(p, "time", "Time", "Time must be in HH:MM format (24-hour)", func(v string) bool {
		_, err := minutesSinceMidnight(v)
		return err == nil
	}); msg != "" {
		errs = append(errs, msg)
	}

	if msg := checkDuration(p); msg != "" {
		errs = append(errs, msg)
	}

	errs = append(errs, checkText(p, "doctorName", "Doctor name")...)

	if msg := checkFormatted(p, "mode", "Appointment mode", "Appointment mode must be one of: online, in-person", func(v string) bool {
		return Mode(v).IsValid()
	}); msg != "" {
		errs = append(errs, msg)
	}

	return len(errs) == 0, errs
}

func checkText(p Payload, field, label string) []string {
	raw, ok := p[field]
	if !ok || raw == nil {
		return []string{label + " is required"}
	}
	s, ok := raw.(string)
	if !ok {
		return []string{label + " must be a string"}
	}
	if strings.TrimSpace(s) == "" {
		return []string{label + " cannot be empty or whitespace only"}
	}
	return nil
}

func checkFormatted(p Payload, field, label, formatMsg string, valid func(string) bool) string {
	raw, ok := p[field]
	if !ok || raw == nil {
		return label + " is required"
	}
	s, ok := raw.(string)
	if !ok {
		return label + " must be a string"
	}
	if !valid(s) {
		return formatMsg
	}
	return ""
}

func checkDuration(p Payload) string {
	raw, ok := p["duration"]
	if !ok || raw == nil {
		return "Duration is required"
	}
	d, ok := asInt(raw)
	if !ok {
		return "Duration must be an integer"
	}
	if d <= 0 {
		return "Duration must be greater than 0 minutes"
	}
	if d > MaxDurationMinutes {
		return "Duration cannot exceed 480 minutes (8 hours)"
	}
	return ""
}

// asInt accepts Go integers, integral json.Number values and integral
// float64s (what encoding/json produces without UseNumber). Booleans are rejected.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) || n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// fromPayload builds a normalized appointment from a validated payload.
func fromPayload(p Payload) Appointment {
	duration, _ := asInt(p["duration"])
	start, _ := minutesSinceMidnight(p["time"].(string))
	return Appointment{
		PatientName: strings.TrimSpace(p["patientName"].(string)),
		Date:        p["date"].(string),
		Time:        formatMinutes(start),
		Duration:    int(duration),
		DoctorName:  strings.TrimSpace(p["doctorName"].(string)),
		Mode:        Mode(p["mode"].(string)),
	}
}
