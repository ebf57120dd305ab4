package telemetry

import (
	"math"
	"strings"
)

const (
	ColorGreen = "#34d399"
	ColorAmber = "#fbbf24"
	ColorRed   = "#f87171"
)

// IsOnline reports whether the broker says the inverter is online.
func IsOnline(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "online")
}

// Level is a battery charge band.
type Level int

const (
	BatteryLow Level = iota
	BatteryMedium
	BatteryHigh
)

func (l Level) String() string {
	switch l {
	case BatteryHigh:
		return "high"
	case BatteryMedium:
		return "medium"
	default:
		return "low"
	}
}

// Color returns the display colour for the band.
func (l Level) Color() string {
	switch l {
	case BatteryHigh:
		return ColorGreen
	case BatteryMedium:
		return ColorAmber
	default:
		return ColorRed
	}
}

// BatteryLevel bands a percentage: >=70 high, >=30 medium, else low.
func BatteryLevel(percent float64) Level {
	switch {
	case percent >= 70:
		return BatteryHigh
	case percent >= 30:
		return BatteryMedium
	default:
		return BatteryLow
	}
}

// ClampPercent limits p to 0..100. NaN becomes 0.
func ClampPercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(100, math.Max(0, p))
}
