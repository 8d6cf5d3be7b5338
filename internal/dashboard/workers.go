package dashboard

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"safewatch/internal/classify"
	"safewatch/internal/model"
)

type WorkerStats struct {
	TotalWorkers  int          `json:"totalWorkers"`
	ActiveWorkers int          `json:"activeWorkers"`
	Workers       []WorkerView `json:"workers"`
}

type WorkerView struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	HeartRate       *float64 `json:"heartRate"`
	SpO2            *float64 `json:"spo2"`
	Temperature     *float64 `json:"temperature"`
	RiskProbability *float64 `json:"riskProbability"`
	HRV             *float64 `json:"hrv"`
	HealthStatus    string   `json:"healthStatus"`
	Gender          string   `json:"gender"`
	Age             *int     `json:"age"`
	Height          *float64 `json:"height"`
	Weight          *float64 `json:"weight"`
	BMI             *float64 `json:"bmi"`
}

func emptyWorkerStats() WorkerStats {
	return WorkerStats{Workers: []WorkerView{}}
}

// WorkerStats lists every worker by id with the status of its newest measurement.
// A worker is active when it has at least one measurement.
func (s *Service) WorkerStats(ctx context.Context) Result[WorkerStats] {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		s.log.Error("worker stats: list workers", zap.Error(err))
		return Result[WorkerStats]{Data: emptyWorkerStats(), Err: err}
	}
	latest, err := s.store.LatestMeasurements(ctx)
	if err != nil {
		s.log.Error("worker stats: latest measurements", zap.Error(err))
		return Result[WorkerStats]{Data: emptyWorkerStats(), Err: err}
	}
	byWorker := make(map[int64]*model.Measurement, len(latest))
	for i := range latest {
		byWorker[latest[i].WorkerID] = &latest[i]
	}

	out := emptyWorkerStats()
	for _, w := range workers {
		m := byWorker[w.ID]
		out.TotalWorkers++
		if m != nil {
			out.ActiveWorkers++
		}
		out.Workers = append(out.Workers, workerView(w, m))
	}
	return Result[WorkerStats]{Data: out}
}

func workerView(w model.Worker, m *model.Measurement) WorkerView {
	v := WorkerView{
		ID:           w.ID,
		Name:         w.DisplayName(),
		Status:       classify.Status(m),
		HealthStatus: classify.HealthStatus(m),
		Gender:       w.Gender,
		Age:          w.Age,
		Height:       positive(w.HeightM),
		Weight:       positive(w.WeightKg),
		BMI:          positive(w.BMI),
	}
	if v.Gender == "" {
		v.Gender = "unknown"
	}
	if m != nil {
		v.HeartRate = ptr(m.PulseRate)
		v.SpO2 = ptr(m.SpO2)
		v.Temperature = ptr(m.BodyTemp)
		v.RiskProbability = ptr(m.Probability)
		v.HRV = ptr(m.HRV)
	}
	return v
}

func ptr[T any](v T) *T { return &v }

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}

// ListWorkers returns every worker, newest first.
func (s *Service) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(workers, func(i, j int) bool {
		if !workers[i].CreatedAt.Equal(workers[j].CreatedAt) {
			return workers[i].CreatedAt.After(workers[j].CreatedAt)
		}
		return workers[i].ID > workers[j].ID
	})
	return workers, nil
}

type WorkerInput struct {
	FirstName string  `json:"fname"`
	LastName  string  `json:"lname"`
	Gender    string  `json:"gender"`
	Age       *int    `json:"age"`
	HeightM   float64 `json:"height_m"`
	WeightKg  float64 `json:"weight_kg"`
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const msgFieldsRequired = "All fields are required"

func (in WorkerInput) validate() (model.Worker, error) {
	fname := strings.TrimSpace(in.FirstName)
	lname := strings.TrimSpace(in.LastName)
	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	if fname == "" || lname == "" || gender == "" || in.HeightM == 0 || in.WeightKg == 0 {
		return model.Worker{}, &ValidationError{Message: msgFieldsRequired}
	}
	if gender != "male" && gender != "female" {
		return model.Worker{}, &ValidationError{Message: "Gender must be male or female"}
	}
	if in.HeightM < 0 || in.WeightKg < 0 {
		return model.Worker{}, &ValidationError{Message: "Height and weight must be positive"}
	}
	if in.Age != nil && *in.Age < 0 {
		return model.Worker{}, &ValidationError{Message: "Age must not be negative"}
	}
	w := model.Worker{FirstName: fname, LastName: lname, Gender: gender, Age: in.Age}
	w.SetBody(in.HeightM, in.WeightKg)
	return w, nil
}

// CreateWorker validates the input before writing anything. Invalid input
// yields a *ValidationError.
func (s *Service) CreateWorker(ctx context.Context, in WorkerInput) (model.Worker, error) {
	w, err := in.validate()
	if err != nil {
		return model.Worker{}, err
	}
	created, err := s.store.CreateWorker(ctx, w)
	if err != nil {
		s.log.Error("create worker", zap.Error(err))
		return model.Worker{}, err
	}
	s.log.Info("worker created", zap.Int64("worker_id", created.ID))
	return created, nil
}
