package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safewatch/internal/model"
	"safewatch/internal/storage"
)

type AlertStats struct {
	TotalAlerts       int            `json:"totalAlerts"`
	FallDetectedCount int            `json:"fallDetectedCount"`
	SOSAlertsCount    int            `json:"sosAlertsCount"`
	HealthAlertsCount int            `json:"healthAlertsCount"`
	RecentAlerts      []AlertSummary `json:"recentAlerts"`
}

type AlertSummary struct {
	ID           int64           `json:"id"`
	Type         model.AlertKind `json:"type"`
	WorkerID     int64           `json:"workerId"`
	Message      string          `json:"message"`
	Severity     string          `json:"severity"`
	CreatedAt    time.Time       `json:"createdAt"`
	Acknowledged bool            `json:"acknowledged"`
}

type UnackAlertView struct {
	ID           int64           `json:"id"`
	WorkerID     int64           `json:"worker_id"`
	FirstName    string          `json:"fname"`
	LastName     string          `json:"lname"`
	Type         model.AlertKind `json:"type"`
	CreatedAt    time.Time       `json:"createdAt"`
	Acknowledged bool            `json:"acknowledged"`
}

type RecentAlertView struct {
	ID           int64           `json:"id"`
	WorkerID     int64           `json:"worker_id"`
	WorkerName   string          `json:"workerName"`
	Acknowledged string          `json:"acknowledged"`
	Time         time.Time       `json:"time"`
	Type         model.AlertKind `json:"type"`
}

type AckResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const (
	AckSucceeded = "Alert acknowledged successfully"
	AckNoop      = "Alert not found or already acknowledged"
	AckFailed    = "Database error occurred"
)

func emptyAlertStats() AlertStats {
	return AlertStats{RecentAlerts: []AlertSummary{}}
}

// AlertStats counts unacknowledged alerts by kind and summarizes the newest five.
func (s *Service) AlertStats(ctx context.Context) Result[AlertStats] {
	open, err := s.store.ListAlerts(ctx, storage.AlertFilter{UnacknowledgedOnly: true})
	if err != nil {
		s.log.Error("alert stats", zap.Error(err))
		return Result[AlertStats]{Data: emptyAlertStats(), Err: err}
	}
	out := emptyAlertStats()
	out.TotalAlerts = len(open)
	for i, a := range open {
		switch a.Kind {
		case model.AlertFall:
			out.FallDetectedCount++
		case model.AlertSOS:
			out.SOSAlertsCount++
		case model.AlertHealth:
			out.HealthAlertsCount++
		}
		if i < alertStatsRecent {
			out.RecentAlerts = append(out.RecentAlerts, AlertSummary{
				ID:           a.ID,
				Type:         a.Kind,
				WorkerID:     a.WorkerID,
				Message:      a.Message,
				Severity:     a.Severity,
				CreatedAt:    a.CreatedAt,
				Acknowledged: a.Acknowledged,
			})
		}
	}
	return Result[AlertStats]{Data: out}
}

// UnacknowledgedAlerts lists every open alert newest first. An alert whose
// worker cannot be found is kept with the names "Unknown" "Worker".
func (s *Service) UnacknowledgedAlerts(ctx context.Context) Result[[]UnackAlertView] {
	open, err := s.store.ListAlerts(ctx, storage.AlertFilter{UnacknowledgedOnly: true})
	if err != nil {
		s.log.Error("unacknowledged alerts", zap.Error(err))
		return Result[[]UnackAlertView]{Data: []UnackAlertView{}, Err: err}
	}
	lookup := s.newLookup()
	out := make([]UnackAlertView, 0, len(open))
	for _, a := range open {
		v := UnackAlertView{
			ID:           a.ID,
			WorkerID:     a.WorkerID,
			FirstName:    "Unknown",
			LastName:     "Worker",
			Type:         a.Kind,
			CreatedAt:    a.CreatedAt,
			Acknowledged: a.Acknowledged,
		}
		if w := lookup.find(ctx, a.WorkerID); w != nil {
			v.FirstName, v.LastName = w.FirstName, w.LastName
		}
		out = append(out, v)
	}
	return Result[[]UnackAlertView]{Data: out}
}

// RecentAlerts returns the three newest alerts whatever their state.
func (s *Service) RecentAlerts(ctx context.Context) Result[[]RecentAlertView] {
	recent, err := s.store.ListAlerts(ctx, storage.AlertFilter{Limit: recentAlertsLimit})
	if err != nil {
		s.log.Error("recent alerts", zap.Error(err))
		return Result[[]RecentAlertView]{Data: []RecentAlertView{}, Err: err}
	}
	lookup := s.newLookup()
	out := make([]RecentAlertView, 0, len(recent))
	for _, a := range recent {
		v := RecentAlertView{
			ID:           a.ID,
			WorkerID:     a.WorkerID,
			WorkerName:   "Unknown Worker",
			Acknowledged: "Remaining",
			Time:         a.CreatedAt,
			Type:         a.Kind,
		}
		if a.Acknowledged {
			v.Acknowledged = "Done"
		}
		if a.UpdatedAt != nil {
			v.Time = *a.UpdatedAt
		}
		if w := lookup.find(ctx, a.WorkerID); w != nil {
			v.WorkerName = w.FirstName + " " + w.LastName
		}
		out = append(out, v)
	}
	return Result[[]RecentAlertView]{Data: out}
}

// AcknowledgeAlert marks an alert acknowledged. It never returns an error;
// failures are reported in the result.
func (s *Service) AcknowledgeAlert(ctx context.Context, id int64) AckResult {
	ok, err := s.store.AcknowledgeAlert(ctx, id)
	if err != nil {
		s.log.Error("acknowledge alert", zap.Int64("alert_id", id), zap.Error(err))
		return AckResult{Success: false, Message: AckFailed}
	}
	if !ok {
		s.log.Debug("alert not acknowledged", zap.Int64("alert_id", id))
		return AckResult{Success: false, Message: AckNoop}
	}
	s.log.Info("alert acknowledged", zap.Int64("alert_id", id))
	return AckResult{Success: true, Message: AckSucceeded}
}
