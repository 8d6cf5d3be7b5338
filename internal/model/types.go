package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type AlertKind string

const (
	AlertFall   AlertKind = "fall_detected"
	AlertSOS    AlertKind = "sos"
	AlertHealth AlertKind = "health"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// ParseAlertKind accepts the canonical kinds and the legacy "Health" spelling.
func ParseAlertKind(s string) (AlertKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fall_detected", "fall":
		return AlertFall, true
	case "sos":
		return AlertSOS, true
	case "health":
		return AlertHealth, true
	}
	return "", false
}

func (k AlertKind) DefaultSeverity() string {
	if k == AlertHealth {
		return SeverityWarning
	}
	return SeverityCritical
}

type Worker struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"fname"`
	LastName  string    `json:"lname"`
	Gender    string    `json:"gender"`
	Age       *int      `json:"age"`
	HeightM   float64   `json:"height_m"`
	WeightKg  float64   `json:"weight_kg"`
	BMI       float64   `json:"bmi"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SetBody sets height and weight and recomputes BMI from them.
func (w *Worker) SetBody(heightM, weightKg float64) {
	w.HeightM = heightM
	w.WeightKg = weightKg
	w.BMI = ComputeBMI(heightM, weightKg)
}

func (w Worker) DisplayName() string {
	if w.FirstName != "" && w.LastName != "" {
		return w.FirstName + " " + w.LastName
	}
	return "Worker " + strconv.FormatInt(w.ID, 10)
}

// ComputeBMI returns weight / height² rounded to two decimals, or 0 when height is not positive.
func ComputeBMI(heightM, weightKg float64) float64 {
	if heightM <= 0 {
		return 0
	}
	return Round(weightKg/(heightM*heightM), 2)
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

type Measurement struct {
	ID          int64     `json:"id"`
	WorkerID    int64     `json:"worker_id"`
	BodyTemp    float64   `json:"body_temp"`
	PulseRate   float64   `json:"pulse_rate"`
	SpO2        float64   `json:"spo2"`
	HRV         float64   `json:"hrv"`
	Prediction  string    `json:"prediction"`
	Probability float64   `json:"probability"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Alert struct {
	ID           int64      `json:"id"`
	WorkerID     int64      `json:"worker_id"`
	Kind         AlertKind  `json:"type"`
	Message      string     `json:"message"`
	Severity     string     `json:"severity"`
	Acknowledged bool       `json:"acknowledged"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

type HealthHistoryRecord struct {
	ID           int64   `json:"id"`
	WorkerID     int64   `json:"worker_id"`
	Date         string  `json:"date"`
	MinTemp      float64 `json:"min_temp"`
	MaxTemp      float64 `json:"max_temp"`
	AvgTemp      float64 `json:"avg_temp"`
	MinPulse     float64 `json:"min_pulse"`
	MaxPulse     float64 `json:"max_pulse"`
	AvgPulse     float64 `json:"avg_pulse"`
	MinSpO2      float64 `json:"min_spo2"`
	MaxSpO2      float64 `json:"max_spo2"`
	AvgSpO2      float64 `json:"avg_spo2"`
	FallCount    int     `json:"fall_count"`
	SOSCount     int     `json:"sos_count"`
	RiskCount    int     `json:"risk_count"`
	HealthStatus string  `json:"health_status"`
}

// DateLayout is the calendar-date format of HealthHistoryRecord.Date.
const DateLayout = "2006-01-02"

const (
	SOSActive      = "SOS Alert"
	ImpactDetected = "Impact detected"
)

// Reading is one sample reported by a wearable, before it is stored.
type Reading struct {
	WorkerID    int64     `json:"ID"`
	HeartRate   float64   `json:"heartRate"`
	BodyTemp    float64   `json:"bodyTemp"`
	SpO2        float64   `json:"spo2"`
	HRV         float64   `json:"hrv"`
	SOSStatus   string    `json:"sosStatus"`
	MPUStatus   string    `json:"mpuStatus"`
	Prediction  string    `json:"prediction"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

func (r Reading) IsSOS() bool    { return strings.TrimSpace(r.SOSStatus) == SOSActive }
func (r Reading) IsImpact() bool { return strings.TrimSpace(r.MPUStatus) == ImpactDetected }

func (r Reading) Measurement() Measurement {
	return Measurement{
		WorkerID:    r.WorkerID,
		BodyTemp:    r.BodyTemp,
		PulseRate:   r.HeartRate,
		SpO2:        r.SpO2,
		HRV:         r.HRV,
		Prediction:  r.Prediction,
		Probability: r.Probability,
		CreatedAt:   r.Timestamp,
	}
}
