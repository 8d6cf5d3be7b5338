package model

import "testing"

func TestSetBodyRecomputesBMI(t *testing.T) {
	var w Worker
	w.SetBody(1.8, 81)
	if w.BMI != 25 {
		t.Fatalf("bmi: got %v want 25", w.BMI)
	}
	w.SetBody(1.6, 64)
	if w.BMI != 25 {
		t.Fatalf("bmi after update: got %v want 25", w.BMI)
	}
	w.SetBody(1.75, 70)
	if w.BMI != 22.86 {
		t.Fatalf("bmi rounding: got %v want 22.86", w.BMI)
	}
	w.SetBody(0, 70)
	if w.BMI != 0 {
		t.Fatalf("bmi without height: got %v", w.BMI)
	}
}

func TestDisplayName(t *testing.T) {
	w := Worker{ID: 7, FirstName: "Asha", LastName: "Rai"}
	if got := w.DisplayName(); got != "Asha Rai" {
		t.Fatalf("display name: %s", got)
	}
	w.LastName = ""
	if got := w.DisplayName(); got != "Worker 7" {
		t.Fatalf("fallback name: %s", got)
	}
}

func TestParseAlertKind(t *testing.T) {
	cases := map[string]AlertKind{
		"fall_detected": AlertFall,
		"SOS":           AlertSOS,
		"Health":        AlertHealth,
		" health ":      AlertHealth,
	}
	for in, want := range cases {
		got, ok := ParseAlertKind(in)
		if !ok || got != want {
			t.Fatalf("ParseAlertKind(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseAlertKind("battery"); ok {
		t.Fatalf("expected unknown kind to be rejected")
	}
	if AlertHealth.DefaultSeverity() != SeverityWarning || AlertSOS.DefaultSeverity() != SeverityCritical {
		t.Fatalf("default severities mismatch")
	}
}
