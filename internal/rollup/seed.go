package rollup

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"safewatch/internal/model"
	"safewatch/internal/storage"
)

var ErrNoWorkers = errors.New("no workers to seed")

// Seed writes synthetic rollups for every worker over the last days days,
// today included. Existing records for those dates are overwritten.
func Seed(ctx context.Context, store storage.Store, days int, now time.Time, rng *rand.Rand) ([]model.HealthHistoryRecord, error) {
	if days <= 0 {
		days = 7
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	workers, err := store.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	out := make([]model.HealthHistoryRecord, 0, days*len(workers))
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -i).Format(model.DateLayout)
		for _, w := range workers {
			out = append(out, sample(rng, w.ID, date))
		}
	}
	if err := store.UpsertHealthHistory(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func sample(rng *rand.Rand, workerID int64, date string) model.HealthHistoryRecord {
	temp := 36.5 + (rng.Float64()-0.5)*2
	pulse := 70 + rng.Float64()*30
	spo2 := 95 + rng.Float64()*5

	rec := model.HealthHistoryRecord{
		WorkerID: workerID,
		Date:     date,
		MinTemp:  model.Round(temp-0.5, 1),
		MaxTemp:  model.Round(temp+0.5, 1),
		AvgTemp:  model.Round(temp, 1),
		MinPulse: model.Round(pulse-5, 0),
		MaxPulse: model.Round(pulse+10, 0),
		AvgPulse: model.Round(pulse, 0),
		MinSpO2:  model.Round(spo2-2, 0),
		MaxSpO2:  model.Round(spo2+1, 0),
		AvgSpO2:  model.Round(spo2, 0),
	}
	if rng.Float64() < 0.3 {
		rec.FallCount = rng.Intn(3)
	}
	if rng.Float64() < 0.1 {
		rec.SOSCount = rng.Intn(2)
	}
	if rng.Float64() < 0.2 {
		rec.RiskCount = rng.Intn(2)
	}
	rec.HealthStatus = sampleStatus(rng, pulse, spo2, temp)
	return rec
}

func sampleStatus(rng *rand.Rand, pulse, spo2, temp float64) string {
	switch {
	case pulse > 100 || spo2 < 95 || temp > 37.5:
		if rng.Float64() < 0.7 {
			return "warning"
		}
		return "critical"
	case pulse < 60 || temp < 36.0:
		return "warning"
	case rng.Float64() < 0.8:
		return "good"
	default:
		return "warning"
	}
}
