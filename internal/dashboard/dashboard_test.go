package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"safewatch/internal/cache"
	"safewatch/internal/model"
	"safewatch/internal/report"
	"safewatch/internal/storage"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.NewSQLite("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(context.Background()))
	return st
}

// countingStore counts health-history queries reaching the store.
type countingStore struct {
	storage.Store
	historyCalls atomic.Int32
}

func (c *countingStore) HealthHistory(ctx context.Context, q storage.HistoryQuery) ([]model.HealthHistoryRecord, error) {
	c.historyCalls.Add(1)
	return c.Store.HealthHistory(ctx, q)
}

func mustWorker(t *testing.T, st storage.Store, fname, lname string) model.Worker {
	t.Helper()
	w, err := st.CreateWorker(context.Background(), model.Worker{FirstName: fname, LastName: lname, Gender: "male", HeightM: 1.8, WeightKg: 80})
	require.NoError(t, err)
	return w
}

func TestWorkerStatsEmptyTable(t *testing.T) {
	svc := New(newSQLiteStore(t), nil, nil)
	res := svc.WorkerStats(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, WorkerStats{Workers: []WorkerView{}}, res.Data)

	raw, err := json.Marshal(res.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalWorkers":0,"activeWorkers":0,"workers":[]}`, string(raw))
}

func TestWorkerStatsUsesLatestMeasurement(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	active := mustWorker(t, st, "Ana", "Diaz")
	idle := mustWorker(t, st, "", "")

	_, err := st.InsertMeasurement(ctx, model.Measurement{WorkerID: active.ID, PulseRate: 130, SpO2: 98, BodyTemp: 36.8, CreatedAt: testNow.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = st.InsertMeasurement(ctx, model.Measurement{WorkerID: active.ID, PulseRate: 80, SpO2: 98, BodyTemp: 36.8, Probability: 55, CreatedAt: testNow})
	require.NoError(t, err)

	res := New(st, nil, nil).WorkerStats(ctx)
	require.True(t, res.OK())
	assert.Equal(t, 2, res.Data.TotalWorkers)
	assert.Equal(t, 1, res.Data.ActiveWorkers)
	require.Len(t, res.Data.Workers, 2)

	first := res.Data.Workers[0]
	assert.Equal(t, "Ana Diaz", first.Name)
	assert.Equal(t, "normal", first.Status)
	assert.Equal(t, "warning", first.HealthStatus)
	require.NotNil(t, first.HeartRate)
	assert.Equal(t, 80.0, *first.HeartRate)
	require.NotNil(t, first.BMI)
	assert.Equal(t, 24.69, *first.BMI)

	second := res.Data.Workers[1]
	assert.Equal(t, "Worker "+strconv.FormatInt(idle.ID, 10), second.Name)
	assert.Equal(t, "inactive", second.Status)
	assert.Equal(t, "unknown", second.HealthStatus)
	assert.Nil(t, second.HeartRate)
}

func TestLatestMeasurementsSelectsByTime(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	w := mustWorker(t, st, "Ben", "Ode")

	_, err := st.InsertMeasurement(ctx, model.Measurement{WorkerID: w.ID, PulseRate: 130, Prediction: "1", CreatedAt: testNow.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = st.InsertMeasurement(ctx, model.Measurement{WorkerID: w.ID, PulseRate: 80, Prediction: "0", CreatedAt: testNow})
	require.NoError(t, err)
	_, err = st.InsertMeasurement(ctx, model.Measurement{WorkerID: 999, PulseRate: 70, CreatedAt: testNow})
	require.NoError(t, err)

	res := New(st, nil, nil).LatestMeasurements(ctx)
	require.True(t, res.OK())
	require.Len(t, res.Data, 2)

	got := res.Data[0]
	assert.Equal(t, 80.0, got.PulseRate)
	assert.Equal(t, "High Risk", got.RiskLevel)
	require.NotNil(t, got.FirstName)
	assert.Equal(t, "Ben", *got.FirstName)
	assert.Equal(t, "2024-05-10T12:00:00.000Z", got.Timestamp)
	assert.Equal(t, testNow.UnixMilli(), got.TimestampMs)

	orphan := res.Data[1]
	assert.Nil(t, orphan.FirstName)
	assert.Nil(t, orphan.Gender)
	assert.Equal(t, "Low Risk", orphan.RiskLevel)
}

func TestAlertStatsAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	w := mustWorker(t, st, "Cy", "Ray")
	svc := New(st, nil, nil)

	for i, kind := range []model.AlertKind{model.AlertFall, model.AlertSOS, model.AlertHealth, model.AlertHealth, model.AlertSOS, model.AlertFall} {
		_, err := st.InsertAlert(ctx, model.Alert{WorkerID: w.ID, Kind: kind, CreatedAt: testNow.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	target, err := st.InsertAlert(ctx, model.Alert{WorkerID: w.ID, Kind: model.AlertSOS, Message: "SOS pressed", CreatedAt: testNow.Add(time.Minute)})
	require.NoError(t, err)

	stats := svc.AlertStats(ctx)
	require.True(t, stats.OK())
	assert.Equal(t, 7, stats.Data.TotalAlerts)
	assert.Equal(t, 3, stats.Data.SOSAlertsCount)
	assert.Equal(t, 2, stats.Data.FallDetectedCount)
	assert.Equal(t, 2, stats.Data.HealthAlertsCount)
	require.Len(t, stats.Data.RecentAlerts, 5)
	assert.Equal(t, target, stats.Data.RecentAlerts[0].ID)
	assert.Equal(t, "critical", stats.Data.RecentAlerts[0].Severity)

	first := svc.AcknowledgeAlert(ctx, target)
	assert.Equal(t, AckResult{Success: true, Message: AckSucceeded}, first)
	second := svc.AcknowledgeAlert(ctx, target)
	assert.Equal(t, AckResult{Success: false, Message: AckNoop}, second)

	open := svc.UnacknowledgedAlerts(ctx)
	require.True(t, open.OK())
	assert.Len(t, open.Data, 6)
	for _, a := range open.Data {
		assert.NotEqual(t, target, a.ID)
		assert.Equal(t, "Cy", a.FirstName)
	}

	stats = svc.AlertStats(ctx)
	assert.Equal(t, 2, stats.Data.SOSAlertsCount)
}

func TestUnacknowledgedAlertsUnknownWorker(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	_, err := st.InsertAlert(ctx, model.Alert{WorkerID: 42, Kind: model.AlertFall, CreatedAt: testNow})
	require.NoError(t, err)

	res := New(st, nil, nil).UnacknowledgedAlerts(ctx)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Unknown", res.Data[0].FirstName)
	assert.Equal(t, "Worker", res.Data[0].LastName)
}

func TestRecentAlerts(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	w := mustWorker(t, st, "Di", "Lee")
	svc := New(st, nil, nil)

	var ids []int64
	for i := 0; i < 4; i++ {
		id, err := st.InsertAlert(ctx, model.Alert{WorkerID: w.ID, Kind: model.AlertHealth, CreatedAt: testNow.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := st.InsertAlert(ctx, model.Alert{WorkerID: 77, Kind: model.AlertSOS, CreatedAt: testNow.Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, svc.AcknowledgeAlert(ctx, ids[3]).Success)

	res := svc.RecentAlerts(ctx)
	require.True(t, res.OK())
	require.Len(t, res.Data, 3)
	assert.Equal(t, "Unknown Worker", res.Data[0].WorkerName)
	assert.Equal(t, "Remaining", res.Data[0].Acknowledged)
	assert.Equal(t, "Di Lee", res.Data[1].WorkerName)
	assert.Equal(t, "Done", res.Data[1].Acknowledged)
	assert.True(t, res.Data[1].Time.After(testNow.Add(3*time.Minute)), "time falls back to updatedAt")
	assert.True(t, testNow.Add(2*time.Minute).Equal(res.Data[2].Time))
}

func seedHistory(t *testing.T, st storage.Store) {
	t.Helper()
	require.NoError(t, st.UpsertHealthHistory(context.Background(), []model.HealthHistoryRecord{
		{WorkerID: 5, Date: "2024-05-09", AvgTemp: 36.7, AvgPulse: 80, AvgSpO2: 97, FallCount: 1},
		{WorkerID: 6, Date: "2024-05-08", AvgTemp: 37.0, AvgPulse: 90, AvgSpO2: 95, RiskCount: 2},
		{WorkerID: 5, Date: "2024-05-07", AvgTemp: 36.5, AvgPulse: 72, AvgSpO2: 98, SOSCount: 1},
		{WorkerID: 5, Date: "2024-05-08", AvgTemp: 36.6, AvgPulse: 75, AvgSpO2: 96, RiskCount: 1},
		{WorkerID: 5, Date: "2024-04-01", AvgTemp: 39.0},
	}))
}

func TestHealthHistoryGroupsByWorker(t *testing.T) {
	st := newSQLiteStore(t)
	seedHistory(t, st)
	clk := &clock{t: testNow}
	svc := New(st, nil, nil, WithClock(clk.now))

	res := svc.HealthHistory(context.Background(), nil, 7)
	require.True(t, res.OK())
	require.True(t, res.Data.Success)
	require.Len(t, res.Data.Data, 2)

	five := res.Data.Data["5"]
	require.NotNil(t, five)
	assert.Equal(t, "Worker 5", five.WorkerName)
	assert.Equal(t, []string{"2024-05-07", "2024-05-08", "2024-05-09"}, five.Dates)
	assert.Equal(t, []float64{36.5, 36.6, 36.7}, five.Temperature.Avg)
	assert.Equal(t, []int{0, 0, 1}, five.Counts.Fall)
	assert.Equal(t, []int{1, 0, 0}, five.Counts.SOS)

	six := res.Data.Data["6"]
	require.NotNil(t, six)
	assert.Equal(t, []string{"2024-05-08"}, six.Dates)
	assert.Equal(t, 7, res.Data.DateRange.Days)

	id := int64(6)
	only := svc.HealthHistory(context.Background(), &id, 7)
	assert.Len(t, only.Data.Data, 1)
}

func TestHealthHistoryCachedWithinTTL(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{Store: newSQLiteStore(t)}
	seedHistory(t, st)
	clk := &clock{t: testNow}
	history := cache.NewTTL[HistoryResult](15*time.Second, 0, cache.WithClock(clk.now))
	svc := New(st, history, nil, WithClock(clk.now))

	id := int64(5)
	first := svc.HealthHistory(ctx, &id, 7)
	clk.t = clk.t.Add(10 * time.Second)
	second := svc.HealthHistory(ctx, &id, 7)
	assert.Equal(t, int32(1), st.historyCalls.Load())
	assert.Equal(t, first.Data, second.Data)

	clk.t = clk.t.Add(16 * time.Second)
	svc.HealthHistory(ctx, &id, 7)
	assert.Equal(t, int32(2), st.historyCalls.Load())

	svc.HealthHistory(ctx, nil, 7)
	assert.Equal(t, int32(3), st.historyCalls.Load(), "a different key misses")
}

func TestHealthHistoryErrorNotCached(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("FROM health_history").WillReturnError(errors.New("db down"))
	mock.ExpectQuery("FROM health_history").WillReturnError(errors.New("db down"))

	history := cache.NewTTL[HistoryResult](time.Minute, 0)
	svc := New(storage.Wrap(db, "sqlite"), history, nil)

	res := svc.HealthHistory(context.Background(), nil, 7)
	require.Error(t, res.Err)
	assert.False(t, res.Data.Success)
	assert.Equal(t, "db down", res.Data.Error)
	assert.NotNil(t, res.Data.Data)
	assert.Equal(t, 0, history.Len())

	svc.HealthHistory(context.Background(), nil, 7)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationsFailOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 4; i++ {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))
	}

	svc := New(storage.Wrap(db, "sqlite"), nil, nil)
	ctx := context.Background()

	ws := svc.WorkerStats(ctx)
	assert.Error(t, ws.Err)
	assert.Equal(t, emptyWorkerStats(), ws.Data)

	as := svc.AlertStats(ctx)
	assert.Error(t, as.Err)
	assert.Equal(t, emptyAlertStats(), as.Data)

	ua := svc.UnacknowledgedAlerts(ctx)
	assert.Error(t, ua.Err)
	assert.Empty(t, ua.Data)
	assert.NotNil(t, ua.Data)

	lm := svc.LatestMeasurements(ctx)
	assert.Error(t, lm.Err)
	assert.NotNil(t, lm.Data)
}

func TestAcknowledgeAlertStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("UPDATE alerts").WillReturnError(errors.New("locked"))

	res := New(storage.Wrap(db, "sqlite"), nil, nil).AcknowledgeAlert(context.Background(), 1)
	assert.Equal(t, AckResult{Success: false, Message: AckFailed}, res)
}

func TestHealthStatsSummary(t *testing.T) {
	st := newSQLiteStore(t)
	seedHistory(t, st)
	clk := &clock{t: testNow}
	svc := New(st, nil, nil, WithClock(clk.now))

	res := svc.HealthStatsSummary(context.Background(), 5, 7)
	require.True(t, res.OK())
	require.NotNil(t, res.Data.Summary)
	sum := res.Data.Summary
	assert.Equal(t, 3, sum.TotalDays)
	assert.Equal(t, 36.6, sum.Averages.Temperature)
	assert.Equal(t, 76, sum.Averages.HeartRate)
	assert.Equal(t, 97, sum.Averages.SpO2)
	assert.Equal(t, Totals{FallCounts: 1, SOSCounts: 1, RiskCounts: 1}, sum.Totals)

	empty := svc.HealthStatsSummary(context.Background(), 99, 7)
	require.True(t, empty.Data.Success)
	assert.Equal(t, &Summary{}, empty.Data.Summary)
}

func TestCreateWorkerValidation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := New(storage.Wrap(db, "sqlite"), nil, nil)

	cases := []struct {
		name string
		in   WorkerInput
		msg  string
	}{
		{"missing name", WorkerInput{LastName: "X", Gender: "male", HeightM: 1.7, WeightKg: 70}, msgFieldsRequired},
		{"missing height", WorkerInput{FirstName: "A", LastName: "X", Gender: "male", WeightKg: 70}, msgFieldsRequired},
		{"bad gender", WorkerInput{FirstName: "A", LastName: "X", Gender: "robot", HeightM: 1.7, WeightKg: 70}, "Gender must be male or female"},
		{"negative weight", WorkerInput{FirstName: "A", LastName: "X", Gender: "female", HeightM: 1.7, WeightKg: -1}, "Height and weight must be positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateWorker(context.Background(), tc.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.msg, verr.Message)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet(), "no write reaches the store")
}

func TestCreateAndListWorkers(t *testing.T) {
	ctx := context.Background()
	svc := New(newSQLiteStore(t), nil, nil)

	age := 40
	first, err := svc.CreateWorker(ctx, WorkerInput{FirstName: " Eve ", LastName: "Ng", Gender: "Female", Age: &age, HeightM: 1.6, WeightKg: 55})
	require.NoError(t, err)
	assert.Equal(t, "Eve", first.FirstName)
	assert.Equal(t, "female", first.Gender)
	assert.Equal(t, 21.48, first.BMI)

	second, err := svc.CreateWorker(ctx, WorkerInput{FirstName: "Fu", LastName: "Ma", Gender: "male", HeightM: 1.7, WeightKg: 70})
	require.NoError(t, err)

	list, err := svc.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestSnapshotCollectsAllViews(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	w := mustWorker(t, st, "Gu", "Ko")
	_, err := st.InsertAlert(ctx, model.Alert{WorkerID: w.ID, Kind: model.AlertSOS, CreatedAt: testNow})
	require.NoError(t, err)

	snap := New(st, nil, nil).Snapshot(ctx)
	assert.Equal(t, 1, snap.Workers.TotalWorkers)
	assert.Equal(t, 1, snap.Alerts.TotalAlerts)
	assert.Len(t, snap.AllAlerts, 1)
	assert.Len(t, snap.RecentAlerts, 1)
	assert.Empty(t, snap.Measurements)
}

func TestExportHistoryNamesWorkers(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	w := mustWorker(t, st, "Ana", "Diaz")
	require.NoError(t, st.UpsertHealthHistory(ctx, []model.HealthHistoryRecord{
		{WorkerID: w.ID, Date: "2024-05-09", AvgTemp: 36.6, HealthStatus: "good"},
		{WorkerID: 99, Date: "2024-05-08", AvgTemp: 37.0, HealthStatus: "risk"},
	}))

	svc := New(st, nil, nil, WithClock(func() time.Time { return testNow }))
	data, err := svc.ExportHistory(ctx, nil, 7)
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(report.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Worker 99", rows[1][1])
	assert.Equal(t, "Ana Diaz", rows[2][1])
}
