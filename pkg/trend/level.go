package trend

// Level buckets a balance for display (label color, alerts).
type Level int

const (
	Normal Level = iota
	Warning
	Low
)

// Thresholds used by the desktop widget and the OLED display.
const (
	DefaultLowKWh  = 10.0
	DefaultWarnKWh = 30.0
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Warning:
		return "warning"
	default:
		return "normal"
	}
}

// ClassifyLevel returns Low below low, Warning below warn, Normal otherwise.
func ClassifyLevel(balance, low, warn float64) Level {
	switch {
	case balance < low:
		return Low
	case balance < warn:
		return Warning
	default:
		return Normal
	}
}
