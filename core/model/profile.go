package model

import (
	"fmt"
	"strings"
)

// Profile is a taxi class. The set is closed and constant for the process lifetime.
type Profile struct {
	Name            string  `json:"name"`
	Label           string  `json:"label"`
	SpeedMultiplier float64 `json:"speed_multiplier"` // >1 drives faster than the base speed
	PricePerKm      float64 `json:"price_per_km"`
}

var (
	Economy = Profile{Name: "economy", Label: "Economy", SpeedMultiplier: 1.0, PricePerKm: 10.0}
	Comfort = Profile{Name: "comfort", Label: "Comfort", SpeedMultiplier: 1.5, PricePerKm: 15.0}
	Premium = Profile{Name: "premium", Label: "Premium", SpeedMultiplier: 2.0, PricePerKm: 20.0}
)

// Profiles lists every profile in fleet construction order.
func Profiles() []Profile { return []Profile{Economy, Comfort, Premium} }

// ProfileByName resolves a profile from its configuration name.
func ProfileByName(name string) (Profile, error) {
	for _, p := range Profiles() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown taxi profile %q", name)
}

func (p Profile) String() string { return p.Label }
