package model

import (
	"fmt"

	"github.com/kilianp07/taxidispatch/core/geo"
)

// TaxiState is the phase of a taxi's ride cycle. It fits in a uint32 so it can
// be stored atomically.
type TaxiState uint32

const (
	StateAvailable TaxiState = iota
	StateEnRouteToPickup
	StateTransporting
	StateOffline
)

// Busy is true while a ride is in progress.
func (s TaxiState) Busy() bool {
	return s == StateEnRouteToPickup || s == StateTransporting
}

func (s TaxiState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateEnRouteToPickup:
		return "en_route_to_pickup"
	case StateTransporting:
		return "transporting"
	case StateOffline:
		return "offline"
	default:
		return fmt.Sprintf("TaxiState(%d)", uint32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s TaxiState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TaxiState) UnmarshalText(b []byte) error {
	for _, v := range []TaxiState{StateAvailable, StateEnRouteToPickup, StateTransporting, StateOffline} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown taxi state %q", b)
}

// TaxiView is a read-only copy of a taxi's observable fields. Fields are read
// one by one, so a view may be one transition stale.
type TaxiView struct {
	ID               int       `json:"id"`
	Profile          Profile   `json:"profile"`
	Location         geo.Point `json:"location"`
	State            TaxiState `json:"state"`
	CurrentRequestID int64     `json:"current_request_id,omitempty"`
}
