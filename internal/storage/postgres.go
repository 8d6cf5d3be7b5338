package storage

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workers (
			id BIGSERIAL PRIMARY KEY,
			fname TEXT NOT NULL DEFAULT '',
			lname TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			age INTEGER,
			height_m DOUBLE PRECISION NOT NULL DEFAULT 0,
			weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
			bmi DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id BIGSERIAL PRIMARY KEY,
			worker_id BIGINT NOT NULL,
			body_temp DOUBLE PRECISION NOT NULL DEFAULT 0,
			pulse_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			spo2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			hrv DOUBLE PRECISION NOT NULL DEFAULT 0,
			prediction TEXT NOT NULL DEFAULT '',
			probability DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_worker_ts ON measurements(worker_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			worker_id BIGINT NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(created_at)`,
		`CREATE TABLE IF NOT EXISTS health_history (
			id BIGSERIAL PRIMARY KEY,
			worker_id BIGINT NOT NULL,
			date TEXT NOT NULL,
			min_temp DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_temp DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_temp DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_pulse DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_pulse DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_pulse DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_spo2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_spo2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_spo2 DOUBLE PRECISION NOT NULL DEFAULT 0,
			fall_count INTEGER NOT NULL DEFAULT 0,
			sos_count INTEGER NOT NULL DEFAULT 0,
			risk_count INTEGER NOT NULL DEFAULT 0,
			health_status TEXT NOT NULL DEFAULT '',
			UNIQUE (worker_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_history_date ON health_history(date)`,
	},
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/safewatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, dialect: postgresDialect}, nil
}
