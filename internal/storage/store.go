package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"safewatch/internal/config"
	"safewatch/internal/model"
)

var ErrNotFound = errors.New("not found")

type AlertFilter struct {
	UnacknowledgedOnly bool
	// Limit <= 0 returns every matching row.
	Limit int
}

type HistoryQuery struct {
	// WorkerID nil selects every worker.
	WorkerID *int64
	From     string
	To       string
	Limit    int
}

type Store interface {
	Init(ctx context.Context) error
	Close() error

	CreateWorker(ctx context.Context, w model.Worker) (model.Worker, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	GetWorker(ctx context.Context, id int64) (model.Worker, error)

	InsertMeasurement(ctx context.Context, m model.Measurement) (int64, error)
	LatestMeasurements(ctx context.Context) ([]model.Measurement, error)
	MeasurementsBetween(ctx context.Context, from, to time.Time) ([]model.Measurement, error)

	InsertAlert(ctx context.Context, a model.Alert) (int64, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	AlertsBetween(ctx context.Context, from, to time.Time) ([]model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id int64) (bool, error)

	HealthHistory(ctx context.Context, q HistoryQuery) ([]model.HealthHistoryRecord, error)
	UpsertHealthHistory(ctx context.Context, records []model.HealthHistoryRecord) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// Wrap builds a Store over an existing handle, e.g. one produced by sqlmock.
func Wrap(db *sql.DB, driver string) Store {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return &sqlStore{db: db, dialect: postgresDialect}
	default:
		return &sqlStore{db: db, dialect: sqliteDialect}
	}
}

type dialect struct {
	name      string
	schema    []string
	numbered  bool
	textTimes bool
}

// bind rewrites ? placeholders to $n for drivers that need numbered ones.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlite keeps timestamps as fixed-width UTC text so they sort lexically.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z"

func (d dialect) timeArg(t time.Time) any {
	if d.textTimes {
		return t.UTC().Format(textTimeLayout)
	}
	return t.UTC()
}

type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.bind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.bind(q), args...)
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.bind(q), args...)
}

// nullTime scans TIMESTAMPTZ values as well as the text form used by sqlite.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

var timeLayouts = []string{
	textTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (n *nullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}
