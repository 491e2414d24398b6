// Package trend projects how long a dormitory's remaining balance will last.
//
// The estimator is a two-point linear model over the earliest and latest
// readings it is given. Readings are taken irregularly (whenever someone
// looks), usually 2 to 10 per month, so a least-squares fit would chase
// noise; anchoring on the endpoints also means a recharge in the middle of
// the window is absorbed without special handling.
package trend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
)

const (
	// MinSamples is the fewest readings that can produce a slope.
	MinSamples = 2
	// MinSpan is the shortest earliest-to-latest gap trusted for a slope.
	MinSpan = 12 * time.Hour
	// DefaultWindow is the trailing window callers normally pass through Window.
	DefaultWindow = 30 * 24 * time.Hour
)

// Reasons carried by InsufficientData predictions.
const (
	ReasonTooFewSamples = "too few samples"
	ReasonSpanTooShort  = "time span too short"
)

// Kind tags a Prediction.
type Kind int

const (
	// InsufficientData means no projection can be made yet.
	InsufficientData Kind = iota
	// Predict means Days holds the projected days until empty.
	Predict
	// Sufficient means the balance is flat or rising over the window.
	Sufficient
)

func (k Kind) String() string {
	switch k {
	case InsufficientData:
		return "insufficient_data"
	case Predict:
		return "predict"
	case Sufficient:
		return "sufficient"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Prediction is the outcome of Estimate.
type Prediction struct {
	Kind Kind
	// Days is the projected days until the balance reaches zero, rounded
	// to one decimal place. Only meaningful when Kind is Predict.
	Days float64
	// DailyRate is the kWh consumed per day between the anchor readings.
	// Set when Kind is Predict.
	DailyRate float64
	// Reason explains an InsufficientData outcome.
	Reason string
}

func (p Prediction) String() string {
	switch p.Kind {
	case Predict:
		return fmt.Sprintf("%.1f days", p.Days)
	case Sufficient:
		return "sufficient"
	default:
		return "insufficient data: " + p.Reason
	}
}

// Estimate computes the linear depletion rate between the earliest and
// latest readings and projects the days until the balance runs out. The
// input slice is not modified.
func Estimate(readings []models.Reading) Prediction {
	if len(readings) < MinSamples {
		return Prediction{Kind: InsufficientData, Reason: ReasonTooFewSamples}
	}

	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	earliest := sorted[0]
	latest := sorted[len(sorted)-1]

	elapsed := latest.Timestamp.Sub(earliest.Timestamp)
	if elapsed < MinSpan {
		return Prediction{Kind: InsufficientData, Reason: ReasonSpanTooShort}
	}
	elapsedDays := elapsed.Hours() / 24

	consumed := earliest.BalanceKWh - latest.BalanceKWh
	if consumed <= 0 {
		return Prediction{Kind: Sufficient}
	}

	rate := consumed / elapsedDays
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Prediction{Kind: Sufficient}
	}

	days := latest.BalanceKWh / rate
	return Prediction{
		Kind:      Predict,
		Days:      math.Round(days*10) / 10,
		DailyRate: rate,
	}
}

// Window returns the readings whose timestamps fall in (end-span, end].
// A non-positive span returns every reading at or before end.
func Window(readings []models.Reading, end time.Time, span time.Duration) []models.Reading {
	var out []models.Reading
	for _, r := range readings {
		if r.Timestamp.After(end) {
			continue
		}
		if span > 0 && !r.Timestamp.After(end.Add(-span)) {
			continue
		}
		out = append(out, r)
	}
	return out
}
