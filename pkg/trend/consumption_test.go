package trend

import (
	"math"
	"testing"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
)

func TestConsumptionDaily(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	readings := []models.Reading{
		{Timestamp: base.Add(9 * time.Hour), BalanceKWh: 100},
		{Timestamp: base.Add(20 * time.Hour), BalanceKWh: 97}, // same bucket, ignored
		{Timestamp: base.Add(24*time.Hour + 8*time.Hour), BalanceKWh: 92},
		// day 3 missing, interpolated to 86
		{Timestamp: base.Add(72*time.Hour + 10*time.Hour), BalanceKWh: 80},
	}

	got := Consumption(readings, 24*time.Hour)
	if len(got) != 3 {
		t.Fatalf("Consumption() returned %d intervals, want 3", len(got))
	}

	want := []float64{8, 6, 6}
	for i, u := range got {
		if math.Abs(u.KWh-want[i]) > 1e-9 {
			t.Errorf("interval %d KWh = %v, want %v", i, u.KWh, want[i])
		}
		if u.End.Sub(u.Start) != 24*time.Hour {
			t.Errorf("interval %d spans %v", i, u.End.Sub(u.Start))
		}
	}
	if !got[0].Start.Equal(base) {
		t.Errorf("first interval starts %v, want %v", got[0].Start, base)
	}
}

func TestConsumptionRechargeIsNegative(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got := Consumption([]models.Reading{
		{Timestamp: base, BalanceKWh: 5},
		{Timestamp: base.Add(6 * time.Hour), BalanceKWh: 105},
	}, 6*time.Hour)
	if len(got) != 1 || got[0].KWh != -100 {
		t.Fatalf("Consumption() = %+v, want one interval of -100", got)
	}
}

func TestConsumptionTooLittleData(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	one := []models.Reading{{Timestamp: base, BalanceKWh: 5}}
	if got := Consumption(one, time.Hour); got != nil {
		t.Errorf("single reading: got %+v, want nil", got)
	}

	sameBucket := []models.Reading{
		{Timestamp: base, BalanceKWh: 5},
		{Timestamp: base.Add(time.Minute), BalanceKWh: 4},
	}
	if got := Consumption(sameBucket, time.Hour); got != nil {
		t.Errorf("same bucket: got %+v, want nil", got)
	}

	if got := Consumption(sameBucket, 0); got != nil {
		t.Errorf("zero interval: got %+v, want nil", got)
	}
}

func TestConsumptionAlignsToLocalMidnight(t *testing.T) {
	cst := time.FixedZone("CST", 8*3600)
	readings := []models.Reading{
		{Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, cst), BalanceKWh: 60},
		{Timestamp: time.Date(2025, 3, 2, 9, 0, 0, 0, cst), BalanceKWh: 50},
	}

	got := Consumption(readings, 24*time.Hour)
	if len(got) != 1 {
		t.Fatalf("Consumption() = %+v, want one interval", got)
	}
	wantStart := time.Date(2025, 3, 1, 0, 0, 0, 0, cst)
	if !got[0].Start.Equal(wantStart) || !got[0].End.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Errorf("interval = %v -> %v, want local midnight to midnight", got[0].Start, got[0].End)
	}
	if got[0].KWh != 10 {
		t.Errorf("KWh = %v, want 10", got[0].KWh)
	}

	// 01:00 CST is still the previous UTC day; it must land in the local day's bucket
	early := []models.Reading{
		{Timestamp: time.Date(2025, 3, 1, 1, 0, 0, 0, cst), BalanceKWh: 60},
		{Timestamp: time.Date(2025, 3, 1, 23, 0, 0, 0, cst), BalanceKWh: 58},
		{Timestamp: time.Date(2025, 3, 2, 1, 0, 0, 0, cst), BalanceKWh: 55},
	}
	got = Consumption(early, 24*time.Hour)
	if len(got) != 1 || got[0].KWh != 5 {
		t.Fatalf("Consumption() = %+v, want one interval of 5", got)
	}
}
