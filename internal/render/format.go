package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jgoulah/dormpower/pkg/balance"
	"github.com/jgoulah/dormpower/pkg/trend"
)

// FormatKWh formats a balance, e.g. 42.5 -> "42.50 kWh".
func FormatKWh(kwh float64) string {
	return fmt.Sprintf("%.2f kWh", kwh)
}

// FormatPrediction renders a prediction for people.
// e.g. Predict(8.5) -> "8.5 days", Sufficient -> "sufficient"
func FormatPrediction(p trend.Prediction) string {
	switch p.Kind {
	case trend.Predict:
		return fmt.Sprintf("%.1f days", p.Days)
	case trend.Sufficient:
		return "sufficient"
	default:
		return "not enough data (" + p.Reason + ")"
	}
}

// FormatRate formats a consumption rate, e.g. "5.20 kWh/day".
func FormatRate(p trend.Prediction) string {
	if p.Kind != trend.Predict {
		return "-"
	}
	return fmt.Sprintf("%.2f kWh/day", p.DailyRate)
}

// FormatAgo formats t relative to now, e.g. "3 hours ago".
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatLevel renders the level name in its color.
func FormatLevel(l trend.Level) string {
	return LevelStyle(l).Render(l.String())
}

// DescribeFailure explains a fetch or extraction error, telling retryable
// failures apart from rooms the site will never answer for.
func DescribeFailure(err error) string {
	var extractErr *balance.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &extractErr) && !extractErr.Failure.Retryable():
		return fmt.Sprintf("%v (this room cannot be queried online)", err)
	case errors.As(err, &extractErr):
		return fmt.Sprintf("%v (retry later)", err)
	default:
		return fmt.Sprintf("%v (network problem, retry later)", err)
	}
}
