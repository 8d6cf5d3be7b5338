// Package normalize turns loosely keyed device payloads into model.Reading values.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"safewatch/internal/model"
)

// Fields holds the raw string values of one payload, keys lower-cased.
type Fields struct {
	Values map[string]string
	Raw    string
}

func NewFields() *Fields {
	return &Fields{Values: map[string]string{}}
}

func (f *Fields) Set(key, value string) {
	f.Values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
}

func (f *Fields) first(keys ...string) string {
	for _, k := range keys {
		if v := f.Values[k]; v != "" {
			return v
		}
	}
	return ""
}

var ErrMissingWorker = errors.New("reading has no worker id")

// Normalize builds a Reading. The worker id is required; absent vitals are
// zero. An absent timestamp stays zero and the processor stamps arrival time.
// Probabilities given as a fraction in (0, 1] are scaled to percent.
func Normalize(f Fields, loc *time.Location) (model.Reading, error) {
	if loc == nil {
		loc = time.UTC
	}
	var r model.Reading

	idRaw := f.first("id", "worker_id", "workerid", "worker")
	if idRaw == "" {
		return r, ErrMissingWorker
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(idRaw, ".0"), 10, 64)
	if err != nil || id <= 0 {
		return r, fmt.Errorf("worker id %q: invalid", idRaw)
	}
	r.WorkerID = id

	numbers := []struct {
		dst  *float64
		keys []string
	}{
		{&r.HeartRate, []string{"heartrate", "heart_rate", "pulse_rate", "pulse", "hr"}},
		{&r.BodyTemp, []string{"bodytemp", "body_temp", "temperature", "temp"}},
		{&r.SpO2, []string{"spo2", "oxygen"}},
		{&r.HRV, []string{"hrv"}},
		{&r.Probability, []string{"probability", "risk_probability", "riskprobability"}},
	}
	for _, n := range numbers {
		raw := f.first(n.keys...)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return r, fmt.Errorf("%s %q: %w", n.keys[0], raw, err)
		}
		*n.dst = v
	}
	if r.Probability > 0 && r.Probability <= 1 {
		r.Probability = model.Round(r.Probability*100, 2)
	}

	r.SOSStatus = f.first("sosstatus", "sos_status", "sos")
	r.MPUStatus = f.first("mpustatus", "mpu_status", "impact")
	r.Prediction = f.first("prediction", "label")

	if ts := f.first("timestamp", "time", "ts"); ts != "" {
		parsed, err := ParseTimestamp(ts, loc)
		if err != nil {
			return r, fmt.Errorf("parse timestamp: %w", err)
		}
		r.Timestamp = parsed.UTC()
	}
	return r, nil
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

// ParseTimestamp accepts RFC 3339 and common variants, or unix seconds or
// milliseconds. Zone-less values are read in loc.
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
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
