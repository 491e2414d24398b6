package trend

import (
	"sort"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
)

// MaxBuckets bounds the series Consumption will build.
const MaxBuckets = 5000

// Usage is the energy drawn during one interval. Negative KWh means the
// balance went up, i.e. the room was recharged during the interval.
type Usage struct {
	Start time.Time
	End   time.Time
	KWh   float64
}

// Consumption resamples readings into fixed interval buckets counted from
// midnight of the first reading's day in its own location, takes the first
// reading in each bucket as its level, linearly interpolates empty
// buckets, and reports the drop from one bucket to the next. It returns nil
// when fewer than two buckets result.
func Consumption(readings []models.Reading, interval time.Duration) []Usage {
	if interval <= 0 || len(readings) < 2 {
		return nil
	}

	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	ts := sorted[0].Timestamp
	origin := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	n := int(sorted[len(sorted)-1].Timestamp.Sub(origin)/interval) + 1
	if n < 2 || n > MaxBuckets {
		return nil
	}

	levels := make([]float64, n)
	filled := make([]bool, n)
	for _, r := range sorted {
		i := int(r.Timestamp.Sub(origin) / interval)
		if !filled[i] {
			levels[i] = r.BalanceKWh
			filled[i] = true
		}
	}
	interpolate(levels, filled)

	usage := make([]Usage, 0, n-1)
	for i := 1; i < n; i++ {
		start := origin.Add(time.Duration(i) * interval)
		usage = append(usage, Usage{
			Start: start.Add(-interval),
			End:   start,
			KWh:   levels[i-1] - levels[i],
		})
	}
	return usage
}

// interpolate fills gaps between known points. The first and last
// buckets always hold a reading, so every gap has two neighbours.
func interpolate(levels []float64, filled []bool) {
	prev := 0
	for i := 1; i < len(levels); i++ {
		if !filled[i] {
			continue
		}
		if gap := i - prev; gap > 1 {
			step := (levels[i] - levels[prev]) / float64(gap)
			for j := prev + 1; j < i; j++ {
				levels[j] = levels[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
}
