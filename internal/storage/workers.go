package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"safewatch/internal/model"
)

const workerColumns = `id, fname, lname, gender, age, height_m, weight_kg, bmi, created_at, updated_at`

func (s *sqlStore) CreateWorker(ctx context.Context, w model.Worker) (model.Worker, error) {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	w.SetBody(w.HeightM, w.WeightKg)

	var age any
	if w.Age != nil {
		age = *w.Age
	}
	err := s.queryRow(ctx,
		`INSERT INTO workers (fname, lname, gender, age, height_m, weight_kg, bmi, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		w.FirstName, w.LastName, w.Gender, age, w.HeightM, w.WeightKg, w.BMI,
		s.dialect.timeArg(w.CreatedAt), s.dialect.timeArg(w.UpdatedAt),
	).Scan(&w.ID)
	if err != nil {
		return model.Worker{}, err
	}
	return w, nil
}

func (s *sqlStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	rows, err := s.query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Worker, 0)
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetWorker(ctx context.Context, id int64) (model.Worker, error) {
	row := s.queryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Worker{}, ErrNotFound
	}
	return w, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorker(sc scanner) (model.Worker, error) {
	var (
		w       model.Worker
		age     sql.NullInt64
		created nullTime
		updated nullTime
	)
	if err := sc.Scan(&w.ID, &w.FirstName, &w.LastName, &w.Gender, &age,
		&w.HeightM, &w.WeightKg, &w.BMI, &created, &updated); err != nil {
		return model.Worker{}, err
	}
	if age.Valid {
		a := int(age.Int64)
		w.Age = &a
	}
	w.CreatedAt = created.Time
	w.UpdatedAt = updated.Time
	return w, nil
}
