// Package classify maps raw vitals to the categorical levels shown on the dashboard.
package classify

import (
	"strconv"
	"strings"

	"safewatch/internal/model"
)

const (
	StatusNormal   = "normal"
	StatusWarning  = "warning"
	StatusCritical = "critical"
	StatusInactive = "inactive"

	HealthGood     = "good"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthUnknown  = "unknown"

	RiskHigh = "High Risk"
	RiskLow  = "Low Risk"

	DailyGood = "good"
	DailyRisk = "risk"
)

// Status grades a measurement against fixed vital thresholds. A nil measurement is inactive.
func Status(m *model.Measurement) string {
	if m == nil {
		return StatusInactive
	}
	hr, spo2, temp := m.PulseRate, m.SpO2, m.BodyTemp
	switch {
	case hr > 120 || hr < 50 || spo2 < 90 || temp > 38.5:
		return StatusCritical
	case hr > 100 || hr < 60 || spo2 < 95 || temp > 37.5:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// HealthStatus grades the model's risk probability, expressed in percent.
func HealthStatus(m *model.Measurement) string {
	if m == nil {
		return HealthUnknown
	}
	switch {
	case m.Probability > 70:
		return HealthCritical
	case m.Probability > 40:
		return HealthWarning
	default:
		return HealthGood
	}
}

// IsRiskPrediction reports whether the prediction label is the at-risk sentinel 0,
// written either as "0" or as any numeric zero such as "0.0".
func IsRiskPrediction(prediction string) bool {
	p := strings.TrimSpace(prediction)
	if p == "" {
		return false
	}
	if p == "0" {
		return true
	}
	v, err := strconv.ParseFloat(p, 64)
	return err == nil && v == 0
}

func RiskLevel(prediction string) string {
	if IsRiskPrediction(prediction) {
		return RiskHigh
	}
	return RiskLow
}

// DailyHealthStatus grades a day's rollup by its count of risk events.
func DailyHealthStatus(riskCount int) string {
	if riskCount < 2 {
		return DailyGood
	}
	return DailyRisk
}
