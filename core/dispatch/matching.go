package dispatch

import (
	"github.com/kilianp07/taxidispatch/core/geo"
	"github.com/kilianp07/taxidispatch/core/model"
)

// FindNearest returns the available taxi closest to pickup and its distance.
// Ties go to the earliest view in roster order.
func FindNearest(views []model.TaxiView, pickup geo.Point) (model.TaxiView, float64, bool) {
	var (
		best  model.TaxiView
		min   float64
		found bool
	)
	for _, v := range views {
		if v.State != model.StateAvailable {
			continue
		}
		d := geo.Distance(v.Location, pickup)
		if !found || d < min {
			best, min, found = v, d, true
		}
	}
	return best, min, found
}
