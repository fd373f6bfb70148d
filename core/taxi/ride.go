package taxi

import (
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

const (
	// SpeedKmPerHour is the base cruising speed before the profile multiplier.
	SpeedKmPerHour = 180
	MsPerHour      = 3_600_000
	// DefaultTimeScale compresses simulated minutes into wall-clock seconds.
	DefaultTimeScale = 60
)

// TravelTime is the wall-clock time needed to drive km with the given
// profile, truncated to whole milliseconds.
func TravelTime(km float64, p model.Profile, timeScale float64) time.Duration {
	if km <= 0 {
		return 0
	}
	if timeScale <= 0 {
		timeScale = DefaultTimeScale
	}
	mult := p.SpeedMultiplier
	if mult <= 0 {
		mult = 1
	}
	ms := (km / SpeedKmPerHour) * MsPerHour / mult / timeScale
	return time.Duration(int64(ms)) * time.Millisecond
}

// Price is the fare for a paid leg of km.
func Price(km float64, p model.Profile) float64 {
	return km * p.PricePerKm
}
