package storage

import (
	"context"
	"time"

	"safewatch/internal/model"
)

const alertColumns = `id, worker_id, type, message, severity, acknowledged, created_at, updated_at`

func (s *sqlStore) InsertAlert(ctx context.Context, a model.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Severity == "" {
		a.Severity = a.Kind.DefaultSeverity()
	}
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO alerts (worker_id, type, message, severity, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		a.WorkerID, string(a.Kind), a.Message, a.Severity, a.Acknowledged,
		s.dialect.timeArg(a.CreatedAt),
	).Scan(&id)
	return id, err
}

func (s *sqlStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts`
	args := make([]any, 0, 1)
	if f.UnacknowledgedOnly {
		q += ` WHERE acknowledged = FALSE`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.listAlerts(ctx, q, args...)
}

func (s *sqlStore) AlertsBetween(ctx context.Context, from, to time.Time) ([]model.Alert, error) {
	return s.listAlerts(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`,
		s.dialect.timeArg(from), s.dialect.timeArg(to))
}

// AcknowledgeAlert flips acknowledged to true. It reports false when no row
// changed: the id does not exist or the alert was already acknowledged.
func (s *sqlStore) AcknowledgeAlert(ctx context.Context, id int64) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE alerts SET acknowledged = TRUE, updated_at = ?
		WHERE id = ? AND (acknowledged IS NULL OR acknowledged = FALSE)`,
		s.dialect.timeArg(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) listAlerts(ctx context.Context, q string, args ...any) ([]model.Alert, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Alert, 0)
	for rows.Next() {
		var (
			a       model.Alert
			kind    string
			created nullTime
			updated nullTime
		)
		if err := rows.Scan(&a.ID, &a.WorkerID, &kind, &a.Message, &a.Severity,
			&a.Acknowledged, &created, &updated); err != nil {
			return nil, err
		}
		if k, ok := model.ParseAlertKind(kind); ok {
			a.Kind = k
		} else {
			a.Kind = model.AlertKind(kind)
		}
		a.CreatedAt = created.Time
		if updated.Valid {
			t := updated.Time
			a.UpdatedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
