package storage

import (
	"context"
	"time"

	"safewatch/internal/model"
)

const measurementColumns = `id, worker_id, body_temp, pulse_rate, spo2, hrv, prediction, probability, created_at`

func (s *sqlStore) InsertMeasurement(ctx context.Context, m model.Measurement) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO measurements (worker_id, body_temp, pulse_rate, spo2, hrv, prediction, probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		m.WorkerID, m.BodyTemp, m.PulseRate, m.SpO2, m.HRV, m.Prediction, m.Probability,
		s.dialect.timeArg(m.CreatedAt),
	).Scan(&id)
	return id, err
}

// LatestMeasurements returns the newest measurement of every worker that has
// one, ordered by worker id. Equal timestamps resolve to the highest id.
func (s *sqlStore) LatestMeasurements(ctx context.Context) ([]model.Measurement, error) {
	return s.listMeasurements(ctx,
		`SELECT `+measurementColumns+` FROM measurements m
		WHERE m.id = (
			SELECT m2.id FROM measurements m2
			WHERE m2.worker_id = m.worker_id
			ORDER BY m2.created_at DESC, m2.id DESC
			LIMIT 1
		)
		ORDER BY m.worker_id ASC`)
}

func (s *sqlStore) MeasurementsBetween(ctx context.Context, from, to time.Time) ([]model.Measurement, error) {
	return s.listMeasurements(ctx,
		`SELECT `+measurementColumns+` FROM measurements
		WHERE created_at >= ? AND created_at < ?
		ORDER BY worker_id ASC, created_at ASC, id ASC`,
		s.dialect.timeArg(from), s.dialect.timeArg(to))
}

func (s *sqlStore) listMeasurements(ctx context.Context, q string, args ...any) ([]model.Measurement, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Measurement, 0)
	for rows.Next() {
		var (
			m       model.Measurement
			created nullTime
		)
		if err := rows.Scan(&m.ID, &m.WorkerID, &m.BodyTemp, &m.PulseRate, &m.SpO2,
			&m.HRV, &m.Prediction, &m.Probability, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = created.Time
		out = append(out, m)
	}
	return out, rows.Err()
}
