package dashboard

import (
	"context"

	"go.uber.org/zap"

	"safewatch/internal/classify"
)

type MeasurementView struct {
	WorkerID    int64   `json:"worker_id"`
	BodyTemp    float64 `json:"body_temp"`
	PulseRate   float64 `json:"pulse_rate"`
	SpO2        float64 `json:"spo2"`
	Prediction  string  `json:"prediction"`
	RiskLevel   string  `json:"riskLevel"`
	FirstName   *string `json:"fname"`
	LastName    *string `json:"lname"`
	Gender      *string `json:"gender"`
	Timestamp   string  `json:"timestamp"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// isoMillis matches the millisecond UTC form browsers produce for dates.
const isoMillis = "2006-01-02T15:04:05.000Z"

// LatestMeasurements returns the newest measurement of each worker. Name and
// gender are null when the worker row is missing.
func (s *Service) LatestMeasurements(ctx context.Context) Result[[]MeasurementView] {
	latest, err := s.store.LatestMeasurements(ctx)
	if err != nil {
		s.log.Error("latest measurements", zap.Error(err))
		return Result[[]MeasurementView]{Data: []MeasurementView{}, Err: err}
	}
	lookup := s.newLookup()
	out := make([]MeasurementView, 0, len(latest))
	for _, m := range latest {
		v := MeasurementView{
			WorkerID:    m.WorkerID,
			BodyTemp:    m.BodyTemp,
			PulseRate:   m.PulseRate,
			SpO2:        m.SpO2,
			Prediction:  m.Prediction,
			RiskLevel:   classify.RiskLevel(m.Prediction),
			Timestamp:   m.CreatedAt.UTC().Format(isoMillis),
			TimestampMs: m.CreatedAt.UnixMilli(),
		}
		if w := lookup.find(ctx, m.WorkerID); w != nil {
			v.FirstName, v.LastName, v.Gender = ptr(w.FirstName), ptr(w.LastName), ptr(w.Gender)
		}
		out = append(out, v)
	}
	return Result[[]MeasurementView]{Data: out}
}
