package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
)

var cst = time.FixedZone("CST", 8*3600)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewInLocation(filepath.Join(t.TempDir(), "data.db"), cst)
	if err != nil {
		t.Fatalf("NewInLocation() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveReadingOncePerDay(t *testing.T) {
	db := openTestDB(t)

	morning := &models.Reading{DormID: "20414", DormName: "12-305", Timestamp: time.Date(2025, 3, 1, 8, 0, 0, 0, cst), BalanceKWh: 50}
	saved, err := db.SaveReading(morning)
	if err != nil || !saved {
		t.Fatalf("SaveReading(morning) = %v, %v; want true", saved, err)
	}
	if morning.ID == 0 {
		t.Error("SaveReading did not set ID")
	}

	evening := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 1, 22, 0, 0, 0, cst), BalanceKWh: 48}
	saved, err = db.SaveReading(evening)
	if err != nil || saved {
		t.Fatalf("SaveReading(evening) = %v, %v; want false", saved, err)
	}

	// another dorm the same day is independent
	other := &models.Reading{DormID: "20415", Timestamp: time.Date(2025, 3, 1, 22, 0, 0, 0, cst), BalanceKWh: 10}
	if saved, err := db.SaveReading(other); err != nil || !saved {
		t.Fatalf("SaveReading(other dorm) = %v, %v; want true", saved, err)
	}

	// 23:30 UTC on Mar 1 is Mar 2 in CST
	nextDay := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC), BalanceKWh: 45}
	if saved, err := db.SaveReading(nextDay); err != nil || !saved {
		t.Fatalf("SaveReading(next day) = %v, %v; want true", saved, err)
	}

	all, err := db.ListReadings("20414", time.Time{})
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListReadings() = %d rows, want 2", len(all))
	}
	if all[0].BalanceKWh != 50 || all[1].BalanceKWh != 45 {
		t.Errorf("ListReadings() order = %v, %v", all[0].BalanceKWh, all[1].BalanceKWh)
	}
	if all[0].DormName != "12-305" {
		t.Errorf("DormName = %q", all[0].DormName)
	}
	if !all[1].Timestamp.Equal(nextDay.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", all[1].Timestamp, nextDay.Timestamp)
	}
}

func TestListReadingsSinceAndLatest(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, cst)
	for i, kwh := range []float64{90, 80, 70, 60} {
		r := &models.Reading{DormID: "20414", Timestamp: base.AddDate(0, 0, i*10), BalanceKWh: kwh}
		if _, err := db.SaveReading(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.ListReadings("20414", base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("ListReadings() error = %v", err)
	}
	if len(got) != 2 || got[0].BalanceKWh != 70 {
		t.Fatalf("ListReadings(since) = %+v", got)
	}

	latest, err := db.LatestReading("20414")
	if err != nil || latest == nil {
		t.Fatalf("LatestReading() = %v, %v", latest, err)
	}
	if latest.BalanceKWh != 60 {
		t.Errorf("LatestReading() balance = %v, want 60", latest.BalanceKWh)
	}

	none, err := db.LatestReading("nope")
	if err != nil || none != nil {
		t.Fatalf("LatestReading(nope) = %v, %v; want nil, nil", none, err)
	}
}

func TestPublishedFlag(t *testing.T) {
	db := openTestDB(t)

	r1 := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, cst), BalanceKWh: 20}
	r2 := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 2, 9, 0, 0, 0, cst), BalanceKWh: 18}
	db.SaveReading(r1)
	db.SaveReading(r2)

	if err := db.MarkPublished(r1.ID); err != nil {
		t.Fatalf("MarkPublished() error = %v", err)
	}

	pending, err := db.ListUnpublished("20414")
	if err != nil {
		t.Fatalf("ListUnpublished() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != r2.ID {
		t.Fatalf("ListUnpublished() = %+v, want only r2", pending)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	db, err := NewInLocation(path, cst)
	if err != nil {
		t.Fatalf("NewInLocation() error = %v", err)
	}
	r := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, cst), BalanceKWh: 20}
	if _, err := db.SaveReading(r); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkPublished(r.ID); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = NewInLocation(path, cst)
	if err != nil {
		t.Fatalf("reopening existing database: %v", err)
	}
	defer db.Close()

	all, err := db.ListReadings("20414", time.Time{})
	if err != nil || len(all) != 1 {
		t.Fatalf("ListReadings() after reopen = %+v, %v", all, err)
	}
	pending, err := db.ListUnpublished("20414")
	if err != nil || len(pending) != 0 {
		t.Fatalf("ListUnpublished() after reopen = %+v, %v; want none", pending, err)
	}
}

func TestDailyAverages(t *testing.T) {
	db := openTestDB(t)

	for i, kwh := range []float64{30, 28, 25} {
		r := &models.Reading{DormID: "20414", Timestamp: time.Date(2025, 3, 1+i, 9, 0, 0, 0, cst), BalanceKWh: kwh}
		db.SaveReading(r)
	}

	avgs, err := db.DailyAverages("20414", 2)
	if err != nil {
		t.Fatalf("DailyAverages() error = %v", err)
	}
	if len(avgs) != 2 {
		t.Fatalf("DailyAverages() = %d rows, want 2", len(avgs))
	}
	if avgs[0].Date.Day() != 3 || avgs[0].AvgBalance != 25 || avgs[0].Samples != 1 {
		t.Errorf("newest day = %+v", avgs[0])
	}
}

func TestSettlements(t *testing.T) {
	db := openTestDB(t)

	rows := []models.Settlement{
		{SettledAt: time.Date(2025, 2, 1, 0, 10, 0, 0, cst), KWh: 98},
		{SettledAt: time.Date(2025, 3, 1, 0, 10, 0, 0, cst), KWh: 120.5},
	}
	n, err := db.SaveSettlements("20414", rows)
	if err != nil || n != 2 {
		t.Fatalf("SaveSettlements() = %d, %v; want 2", n, err)
	}

	n, err = db.SaveSettlements("20414", rows)
	if err != nil || n != 0 {
		t.Fatalf("SaveSettlements(again) = %d, %v; want 0", n, err)
	}

	got, err := db.ListSettlements("20414")
	if err != nil {
		t.Fatalf("ListSettlements() error = %v", err)
	}
	if len(got) != 2 || got[0].KWh != 120.5 || got[0].DormID != "20414" {
		t.Fatalf("ListSettlements() = %+v", got)
	}
}
