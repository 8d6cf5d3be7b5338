package dashboard

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/cache"
	"safewatch/internal/model"
	"safewatch/internal/report"
	"safewatch/internal/storage"
)

type MinMaxAvg struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
	Avg []float64 `json:"avg"`
}

type EventCounts struct {
	Fall []int `json:"fall"`
	SOS  []int `json:"sos"`
	Risk []int `json:"risk"`
}

// WorkerSeries holds one worker's daily rollups, index-aligned with Dates.
type WorkerSeries struct {
	WorkerID    int64       `json:"workerId"`
	WorkerName  string      `json:"workerName"`
	Dates       []string    `json:"dates"`
	Temperature MinMaxAvg   `json:"temperature"`
	HeartRate   MinMaxAvg   `json:"heartRate"`
	SpO2        MinMaxAvg   `json:"spo2"`
	Counts      EventCounts `json:"counts"`
}

type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

type HistoryResult struct {
	Success   bool                     `json:"success"`
	Error     string                   `json:"error,omitempty"`
	Data      map[string]*WorkerSeries `json:"data"`
	DateRange *DateRange               `json:"dateRange,omitempty"`
}

func (s *Service) window(days int) (time.Time, time.Time, int) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	end := s.now()
	return end.AddDate(0, 0, -days), end, days
}

// HealthHistory groups the daily rollups of one worker, or of all workers when
// workerID is nil, into per-worker series over [today-days, today]. Successful
// results are cached per (worker, days); failures are not.
func (s *Service) HealthHistory(ctx context.Context, workerID *int64, days int) Result[HistoryResult] {
	start, end, days := s.window(days)
	key := cache.HistoryKey(workerID, days)
	if s.history != nil {
		if v, ok := s.history.Get(ctx, key); ok {
			return Result[HistoryResult]{Data: v}
		}
	}

	rows, err := s.store.HealthHistory(ctx, storage.HistoryQuery{
		WorkerID: workerID,
		From:     start.Format(model.DateLayout),
		To:       end.Format(model.DateLayout),
		Limit:    historyRowLimit,
	})
	if err != nil {
		s.log.Error("health history", zap.String("key", key), zap.Error(err))
		return Result[HistoryResult]{
			Data: HistoryResult{Success: false, Error: err.Error(), Data: map[string]*WorkerSeries{}},
			Err:  err,
		}
	}

	out := HistoryResult{
		Success:   true,
		Data:      groupSeries(rows),
		DateRange: &DateRange{Start: start, End: end, Days: days},
	}
	if s.history != nil {
		s.history.Put(ctx, key, out)
	}
	return Result[HistoryResult]{Data: out}
}

// groupSeries keeps the input order within each worker, so date-ascending rows
// give date-ascending series.
func groupSeries(rows []model.HealthHistoryRecord) map[string]*WorkerSeries {
	out := make(map[string]*WorkerSeries)
	for _, r := range rows {
		key := strconv.FormatInt(r.WorkerID, 10)
		ws, ok := out[key]
		if !ok {
			ws = &WorkerSeries{
				WorkerID:    r.WorkerID,
				WorkerName:  "Worker " + key,
				Dates:       []string{},
				Temperature: newMinMaxAvg(),
				HeartRate:   newMinMaxAvg(),
				SpO2:        newMinMaxAvg(),
				Counts:      EventCounts{Fall: []int{}, SOS: []int{}, Risk: []int{}},
			}
			out[key] = ws
		}
		ws.Dates = append(ws.Dates, r.Date)
		ws.Temperature.add(r.MinTemp, r.MaxTemp, r.AvgTemp)
		ws.HeartRate.add(r.MinPulse, r.MaxPulse, r.AvgPulse)
		ws.SpO2.add(r.MinSpO2, r.MaxSpO2, r.AvgSpO2)
		ws.Counts.Fall = append(ws.Counts.Fall, r.FallCount)
		ws.Counts.SOS = append(ws.Counts.SOS, r.SOSCount)
		ws.Counts.Risk = append(ws.Counts.Risk, r.RiskCount)
	}
	return out
}

func newMinMaxAvg() MinMaxAvg {
	return MinMaxAvg{Min: []float64{}, Max: []float64{}, Avg: []float64{}}
}

func (m *MinMaxAvg) add(lo, hi, avg float64) {
	m.Min = append(m.Min, lo)
	m.Max = append(m.Max, hi)
	m.Avg = append(m.Avg, avg)
}

type Averages struct {
	Temperature float64 `json:"temperature"`
	HeartRate   int     `json:"heartRate"`
	SpO2        int     `json:"spo2"`
}

type Totals struct {
	FallCounts int `json:"fallCounts"`
	SOSCounts  int `json:"sosCounts"`
	RiskCounts int `json:"riskCounts"`
}

type Summary struct {
	TotalDays int      `json:"totalDays"`
	Averages  Averages `json:"averages"`
	Totals    Totals   `json:"totals"`
}

type SummaryResult struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// HealthStatsSummary averages one worker's daily rollups over the window and
// totals its event counts. No rows yields a zero summary.
func (s *Service) HealthStatsSummary(ctx context.Context, workerID int64, days int) Result[SummaryResult] {
	start, end, _ := s.window(days)
	rows, err := s.store.HealthHistory(ctx, storage.HistoryQuery{
		WorkerID: &workerID,
		From:     start.Format(model.DateLayout),
		To:       end.Format(model.DateLayout),
	})
	if err != nil {
		s.log.Error("health stats summary", zap.Int64("worker_id", workerID), zap.Error(err))
		return Result[SummaryResult]{Data: SummaryResult{Success: false, Error: err.Error()}, Err: err}
	}
	return Result[SummaryResult]{Data: SummaryResult{Success: true, Summary: summarize(rows)}}
}

func summarize(rows []model.HealthHistoryRecord) *Summary {
	sum := &Summary{TotalDays: len(rows)}
	if len(rows) == 0 {
		return sum
	}
	var temp, pulse, spo2 float64
	for _, r := range rows {
		temp += r.AvgTemp
		pulse += r.AvgPulse
		spo2 += r.AvgSpO2
		sum.Totals.FallCounts += r.FallCount
		sum.Totals.SOSCounts += r.SOSCount
		sum.Totals.RiskCounts += r.RiskCount
	}
	n := float64(len(rows))
	sum.Averages = Averages{
		Temperature: model.Round(temp/n, 1),
		HeartRate:   int(model.Round(pulse/n, 0)),
		SpO2:        int(model.Round(spo2/n, 0)),
	}
	return sum
}

// ExportHistory renders the rollups of the window as an XLSX workbook, rows
// ordered by date. It bypasses the history cache.
func (s *Service) ExportHistory(ctx context.Context, workerID *int64, days int) ([]byte, error) {
	start, end, _ := s.window(days)
	rows, err := s.store.HealthHistory(ctx, storage.HistoryQuery{
		WorkerID: workerID,
		From:     start.Format(model.DateLayout),
		To:       end.Format(model.DateLayout),
	})
	if err != nil {
		s.log.Error("export health history", zap.Error(err))
		return nil, err
	}
	names := make(map[int64]string)
	lookup := s.newLookup()
	for _, r := range rows {
		if _, ok := names[r.WorkerID]; ok {
			continue
		}
		if w := lookup.find(ctx, r.WorkerID); w != nil {
			names[r.WorkerID] = w.DisplayName()
		}
	}
	return report.HealthHistoryXLSX(rows, names)
}
