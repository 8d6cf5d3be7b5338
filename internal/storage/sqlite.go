package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:      "sqlite",
	textTimes: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fname TEXT NOT NULL DEFAULT '',
			lname TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			age INTEGER,
			height_m REAL NOT NULL DEFAULT 0,
			weight_kg REAL NOT NULL DEFAULT 0,
			bmi REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker_id INTEGER NOT NULL,
			body_temp REAL NOT NULL DEFAULT 0,
			pulse_rate REAL NOT NULL DEFAULT 0,
			spo2 REAL NOT NULL DEFAULT 0,
			hrv REAL NOT NULL DEFAULT 0,
			prediction TEXT NOT NULL DEFAULT '',
			probability REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_worker_ts ON measurements(worker_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TEXT NOT NULL,
			updated_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(created_at)`,
		`CREATE TABLE IF NOT EXISTS health_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			min_temp REAL NOT NULL DEFAULT 0,
			max_temp REAL NOT NULL DEFAULT 0,
			avg_temp REAL NOT NULL DEFAULT 0,
			min_pulse REAL NOT NULL DEFAULT 0,
			max_pulse REAL NOT NULL DEFAULT 0,
			avg_pulse REAL NOT NULL DEFAULT 0,
			min_spo2 REAL NOT NULL DEFAULT 0,
			max_spo2 REAL NOT NULL DEFAULT 0,
			avg_spo2 REAL NOT NULL DEFAULT 0,
			fall_count INTEGER NOT NULL DEFAULT 0,
			sos_count INTEGER NOT NULL DEFAULT 0,
			risk_count INTEGER NOT NULL DEFAULT 0,
			health_status TEXT NOT NULL DEFAULT '',
			UNIQUE(worker_id, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_history_date ON health_history(date)`,
	},
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:safewatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	return &sqlStore{db: db, dialect: sqliteDialect}, nil
}
