package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jgoulah/dormpower/internal/database"
	"github.com/jgoulah/dormpower/internal/metrics"
	"github.com/jgoulah/dormpower/internal/publisher"
	"github.com/jgoulah/dormpower/pkg/balance"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
)

// fakeFetcher serves canned pages keyed by dorm id
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) setBalance(dormID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[dormID] = fmt.Sprintf(`<html><body><span id="lblSYDL">%s</span></body></html>`, text)
}

func (f *fakeFetcher) FetchBalancePage(ctx context.Context, dorm models.Dorm) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[dorm.ID]++
	if err := f.errs[dorm.ID]; err != nil {
		return "", err
	}
	return f.pages[dorm.ID], nil
}

func (f *fakeFetcher) FetchHistoryPage(ctx context.Context, dorm models.Dorm) (string, error) {
	return "", errors.New("not implemented")
}

type fakeSink struct {
	mu    sync.Mutex
	snaps []publisher.Snapshot
}

func (s *fakeSink) Publish(snap publisher.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

var (
	roomA = models.Dorm{ID: "20414", Type: "2", Name: "12-305"}
	roomB = models.Dorm{ID: "20415", Type: "2", Name: "12-306"}
	roomC = models.Dorm{ID: "30001", Type: "1", Name: "3-101"}
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPollAcrossDorms(t *testing.T) {
	db := openTestDB(t)
	fetcher := newFakeFetcher()
	fetcher.setBalance(roomA.ID, "60.00")
	fetcher.setBalance(roomB.ID, "暂不支持查询")
	fetcher.errs[roomC.ID] = errors.New("connection reset")

	sink := &fakeSink{}
	reg := prometheus.NewRegistry()
	m := New(fetcher, db, Options{
		Dorms:   []models.Dorm{roomA, roomB, roomC},
		Sink:    sink,
		Metrics: metrics.New(reg),
	})

	day1 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	m.now = func() time.Time { return day1 }

	results, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Poll() = %d results, want 3", len(results))
	}

	a := results[0]
	if a.Err != nil || !a.Saved || a.Reading.BalanceKWh != 60 {
		t.Fatalf("room A = %+v", a)
	}
	if a.Prediction.Kind != trend.InsufficientData {
		t.Errorf("room A prediction = %v, want insufficient data", a.Prediction)
	}

	if !errors.Is(results[1].Err, balance.ErrUnsupportedQuery) {
		t.Errorf("room B error = %v, want unsupported query", results[1].Err)
	}
	if !m.Disabled(roomB.ID) {
		t.Error("room B should be disabled")
	}

	if results[2].Err == nil || m.Disabled(roomC.ID) {
		t.Errorf("room C = %+v, want retryable transport error", results[2])
	}

	if len(sink.snaps) != 1 || sink.snaps[0].Dorm.ID != roomA.ID {
		t.Fatalf("sink got %+v", sink.snaps)
	}
	pending, _ := db.ListUnpublished(roomA.ID)
	if len(pending) != 0 {
		t.Errorf("ListUnpublished() = %d, want 0 after publish", len(pending))
	}

	// Second cycle two days later: A gets a prediction, B is not fetched
	// again, C is retried.
	fetcher.setBalance(roomA.ID, "50.00")
	m.now = func() time.Time { return day1.AddDate(0, 0, 2) }

	results, _ = m.Poll(context.Background())
	if got := results[0].Prediction; got.Kind != trend.Predict || got.Days != 10 {
		t.Errorf("room A prediction = %+v, want 10.0 days", got)
	}
	if !errors.Is(results[1].Err, ErrDisabled) {
		t.Errorf("room B error = %v, want ErrDisabled", results[1].Err)
	}
	if fetcher.calls[roomB.ID] != 1 {
		t.Errorf("room B fetched %d times, want 1", fetcher.calls[roomB.ID])
	}
	if fetcher.calls[roomC.ID] != 2 {
		t.Errorf("room C fetched %d times, want 2", fetcher.calls[roomC.ID])
	}
}

func TestPollSameDayUsesLiveReading(t *testing.T) {
	db := openTestDB(t)
	fetcher := newFakeFetcher()
	m := New(fetcher, db, Options{Dorms: []models.Dorm{roomA}})

	start := time.Date(2025, 3, 1, 0, 30, 0, 0, time.Local)
	fetcher.setBalance(roomA.ID, "30")
	m.now = func() time.Time { return start }
	if _, err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 20 hours later on the same day: not stored, but still the anchor
	fetcher.setBalance(roomA.ID, "25")
	m.now = func() time.Time { return start.Add(20 * time.Hour) }
	results, _ := m.Poll(context.Background())

	r := results[0]
	if r.Saved {
		t.Error("second reading on the same day should not be saved")
	}
	if r.Prediction.Kind != trend.Predict {
		t.Fatalf("prediction = %+v, want predict", r.Prediction)
	}
	// 5 kWh over 20h = 6 kWh/day, 25/6 = 4.17
	if r.Prediction.Days != 4.2 {
		t.Errorf("days = %v, want 4.2", r.Prediction.Days)
	}
	if r.Level != trend.Warning {
		t.Errorf("level = %v, want warning", r.Level)
	}
}

func TestPollMalformedIsRetried(t *testing.T) {
	db := openTestDB(t)
	fetcher := newFakeFetcher()
	fetcher.setBalance(roomA.ID, "--")
	m := New(fetcher, db, Options{Dorms: []models.Dorm{roomA}})

	results, _ := m.Poll(context.Background())
	if !errors.Is(results[0].Err, balance.ErrMalformedValue) {
		t.Fatalf("error = %v, want malformed value", results[0].Err)
	}
	if m.Disabled(roomA.ID) {
		t.Error("malformed value must not disable the dorm")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := New(newFakeFetcher(), openTestDB(t), Options{})
	if err := m.Start(context.Background(), "every now and then"); err == nil {
		m.Stop()
		t.Fatal("Start() should reject an invalid cron spec")
	}

	if err := m.Start(context.Background(), "0 0 * * * *"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.Stop()
}

func TestDisabledDormDropsGauges(t *testing.T) {
	db := openTestDB(t)
	fetcher := newFakeFetcher()
	fetcher.setBalance(roomA.ID, "60.00")

	reg := prometheus.NewRegistry()
	m := New(fetcher, db, Options{Dorms: []models.Dorm{roomA}, Metrics: metrics.New(reg)})
	m.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local) }

	gauges := func() []string {
		t.Helper()
		families, err := reg.Gather()
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, f := range families {
			if f.GetName() != "dormpower_balance_kwh" && f.GetName() != "dormpower_days_remaining" {
				continue
			}
			for _, metric := range f.GetMetric() {
				if metric.GetLabel()[0].GetValue() == roomA.ID {
					names = append(names, f.GetName())
				}
			}
		}
		return names
	}

	m.Poll(context.Background())
	if got := gauges(); len(got) != 2 {
		t.Fatalf("gauges after good poll = %v, want balance and days remaining", got)
	}

	fetcher.setBalance(roomA.ID, "暂不支持查询")
	m.now = func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.Local) }
	m.Poll(context.Background())
	if !m.Disabled(roomA.ID) {
		t.Fatal("room A should be disabled")
	}
	if got := gauges(); len(got) != 0 {
		t.Errorf("gauges after disable = %v, want none", got)
	}
}
