// Package monitor polls the balance of every configured dorm, stores the
// readings and pushes the results to publishers and metrics. The watch
// command drives it from a cron schedule.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/dormpower/internal/metrics"
	"github.com/jgoulah/dormpower/internal/publisher"
	"github.com/jgoulah/dormpower/internal/scraper"
	"github.com/jgoulah/dormpower/pkg/balance"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
)

// maxConcurrent bounds simultaneous requests to the utility site.
const maxConcurrent = 4

// ErrDisabled is returned for a dorm the site has refused to answer for.
var ErrDisabled = errors.New("dorm disabled after unsupported query")

// Store is the subset of the database the monitor needs.
type Store interface {
	SaveReading(r *models.Reading) (bool, error)
	ListReadings(dormID string, since time.Time) ([]models.Reading, error)
	MarkPublished(id int) error
}

// Sink receives a snapshot after every successful poll.
type Sink interface {
	Publish(s publisher.Snapshot) error
}

// Options configure a Monitor. Sink and Metrics are optional.
type Options struct {
	Dorms         []models.Dorm
	Window        time.Duration
	LowThreshold  float64
	WarnThreshold float64
	Sink          Sink
	Metrics       *metrics.Metrics
}

// Result is the outcome of polling one dorm.
type Result struct {
	Dorm       models.Dorm
	Reading    models.Reading
	Saved      bool
	Prediction trend.Prediction
	Level      trend.Level
	Err        error
}

// Monitor runs poll cycles over a fixed set of dorms.
type Monitor struct {
	fetcher scraper.Fetcher
	store   Store
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	disabled map[string]string // dorm id -> label text that disabled it

	cron *cron.Cron
}

// New creates a Monitor.
func New(fetcher scraper.Fetcher, store Store, opts Options) *Monitor {
	if opts.Window <= 0 {
		opts.Window = trend.DefaultWindow
	}
	if opts.LowThreshold <= 0 {
		opts.LowThreshold = trend.DefaultLowKWh
	}
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = trend.DefaultWarnKWh
	}
	return &Monitor{
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		now:      time.Now,
		disabled: make(map[string]string),
	}
}

// Poll fetches every enabled dorm concurrently and returns one Result per
// configured dorm, in configuration order. Per-dorm failures are reported
// in Result.Err; the returned error is only set when ctx ends first.
func (m *Monitor) Poll(ctx context.Context) ([]Result, error) {
	results := make([]Result, len(m.opts.Dorms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, dorm := range m.opts.Dorms {
		i, dorm := i, dorm
		g.Go(func() error {
			results[i] = m.pollDorm(gctx, dorm)
			return nil
		})
	}
	g.Wait()

	return results, ctx.Err()
}

// Disabled reports whether a dorm was disabled by an unsupported query.
func (m *Monitor) Disabled(dormID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.disabled[dormID]
	return ok
}

func (m *Monitor) pollDorm(ctx context.Context, dorm models.Dorm) Result {
	res := Result{Dorm: dorm}

	if m.Disabled(dorm.ID) {
		res.Err = ErrDisabled
		return res
	}

	start := time.Now()
	defer func() {
		if m.opts.Metrics != nil {
			m.opts.Metrics.RecordPoll(time.Since(start).Seconds())
		}
	}()

	page, err := m.fetcher.FetchBalancePage(ctx, dorm)
	if err != nil {
		m.recordError(dorm, "transport")
		log.Printf("[WARN] %s: fetch failed, will retry: %v", dorm.Label(), err)
		res.Err = fmt.Errorf("fetching balance page: %w", err)
		return res
	}

	extracted := balance.Extract(page)
	if !extracted.OK() {
		m.recordError(dorm, extracted.Failure.String())
		res.Err = extracted.Err()
		if !extracted.Failure.Retryable() {
			m.mu.Lock()
			m.disabled[dorm.ID] = extracted.Text
			m.mu.Unlock()
			if m.opts.Metrics != nil {
				m.opts.Metrics.Forget(dorm.ID)
			}
			log.Printf("[ERROR] %s: %v; polling disabled", dorm.Label(), res.Err)
		} else {
			log.Printf("[WARN] %s: %v, will retry", dorm.Label(), res.Err)
		}
		return res
	}

	res.Reading = models.Reading{
		DormID:     dorm.ID,
		DormName:   dorm.Name,
		Timestamp:  m.now(),
		BalanceKWh: extracted.Balance,
	}

	res.Saved, err = m.store.SaveReading(&res.Reading)
	if err != nil {
		m.recordError(dorm, "store")
		res.Err = fmt.Errorf("saving reading: %w", err)
		return res
	}

	series, err := m.store.ListReadings(dorm.ID, res.Reading.Timestamp.Add(-m.opts.Window))
	if err != nil {
		m.recordError(dorm, "store")
		res.Err = fmt.Errorf("listing readings: %w", err)
		return res
	}
	if !res.Saved {
		// Only one reading per day is stored; anchor on the live value anyway
		series = append(series, res.Reading)
	}

	res.Prediction = trend.Estimate(trend.Window(series, res.Reading.Timestamp, m.opts.Window))
	res.Level = trend.ClassifyLevel(res.Reading.BalanceKWh, m.opts.LowThreshold, m.opts.WarnThreshold)

	if res.Level == trend.Low {
		log.Printf("[WARN] %s: balance low, %.2f kWh left (%s)", dorm.Label(), res.Reading.BalanceKWh, res.Prediction)
	} else {
		log.Printf("[INFO] %s: %.2f kWh, %s", dorm.Label(), res.Reading.BalanceKWh, res.Prediction)
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.SetBalance(dorm.ID, res.Reading.BalanceKWh)
		m.opts.Metrics.SetPrediction(dorm.ID, res.Prediction)
	}

	if m.opts.Sink != nil {
		snap := publisher.Snapshot{Dorm: dorm, Reading: res.Reading, Prediction: res.Prediction, Level: res.Level}
		if err := m.opts.Sink.Publish(snap); err != nil {
			m.recordError(dorm, "publish")
			log.Printf("[ERROR] %s: publish: %v", dorm.Label(), err)
		} else if res.Saved {
			if err := m.store.MarkPublished(res.Reading.ID); err != nil {
				log.Printf("[ERROR] %s: mark published: %v", dorm.Label(), err)
			}
		}
	}

	return res
}

func (m *Monitor) recordError(dorm models.Dorm, reason string) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordError(dorm.ID, reason)
	}
}

// Start schedules Poll on spec (six fields, seconds first) and starts
// the scheduler. Jobs run with ctx.
func (m *Monitor) Start(ctx context.Context, spec string) error {
	m.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := m.cron.AddFunc(spec, func() {
		log.Println("[INFO] running poll")
		if _, err := m.Poll(ctx); err != nil {
			log.Printf("[WARN] poll interrupted: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("register poll task: %w", err)
	}
	m.cron.Start()
	log.Println("[INFO] scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running poll to finish.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}
