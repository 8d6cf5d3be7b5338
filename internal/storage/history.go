package storage

import (
	"context"

	"safewatch/internal/model"
)

const historyColumns = `id, worker_id, date, min_temp, max_temp, avg_temp, min_pulse, max_pulse, avg_pulse,
	min_spo2, max_spo2, avg_spo2, fall_count, sos_count, risk_count, health_status`

// HealthHistory returns rollups with From <= date <= To, date ascending.
func (s *sqlStore) HealthHistory(ctx context.Context, q HistoryQuery) ([]model.HealthHistoryRecord, error) {
	stmt := `SELECT ` + historyColumns + ` FROM health_history WHERE date >= ? AND date <= ?`
	args := []any{q.From, q.To}
	if q.WorkerID != nil {
		stmt += ` AND worker_id = ?`
		args = append(args, *q.WorkerID)
	}
	stmt += ` ORDER BY date ASC, worker_id ASC, id ASC`
	if q.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.HealthHistoryRecord, 0)
	for rows.Next() {
		var r model.HealthHistoryRecord
		if err := rows.Scan(&r.ID, &r.WorkerID, &r.Date,
			&r.MinTemp, &r.MaxTemp, &r.AvgTemp,
			&r.MinPulse, &r.MaxPulse, &r.AvgPulse,
			&r.MinSpO2, &r.MaxSpO2, &r.AvgSpO2,
			&r.FallCount, &r.SOSCount, &r.RiskCount, &r.HealthStatus); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertHealthHistory writes rollups in one transaction; an existing
// (worker_id, date) row is overwritten.
func (s *sqlStore) UpsertHealthHistory(ctx context.Context, records []model.HealthHistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.dialect.bind(
		`INSERT INTO health_history (worker_id, date, min_temp, max_temp, avg_temp,
			min_pulse, max_pulse, avg_pulse, min_spo2, max_spo2, avg_spo2,
			fall_count, sos_count, risk_count, health_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (worker_id, date) DO UPDATE SET
			min_temp = excluded.min_temp, max_temp = excluded.max_temp, avg_temp = excluded.avg_temp,
			min_pulse = excluded.min_pulse, max_pulse = excluded.max_pulse, avg_pulse = excluded.avg_pulse,
			min_spo2 = excluded.min_spo2, max_spo2 = excluded.max_spo2, avg_spo2 = excluded.avg_spo2,
			fall_count = excluded.fall_count, sos_count = excluded.sos_count,
			risk_count = excluded.risk_count, health_status = excluded.health_status`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.WorkerID, r.Date,
			r.MinTemp, r.MaxTemp, r.AvgTemp,
			r.MinPulse, r.MaxPulse, r.AvgPulse,
			r.MinSpO2, r.MaxSpO2, r.AvgSpO2,
			r.FallCount, r.SOSCount, r.RiskCount, r.HealthStatus,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
