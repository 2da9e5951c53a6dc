// README: Vicinity gate decides whether a courier is close enough to act on a contract.
package vicinity

import (
	"bagdrop/internal/config"
	"bagdrop/internal/geo"
)

type Action string

const (
	ActionPickup  Action = "pickup"
	ActionDeliver Action = "deliver"
	ActionFail    Action = "fail"
)

// Decision is the outcome of one gate check. DistanceMeters is nil when
// either position could not be read.
type Decision struct {
	Action          Action   `json:"action"`
	Permitted       bool     `json:"permitted"`
	Bypassed        bool     `json:"bypassed"`
	DistanceMeters  *float64 `json:"distance_meters"`
	ThresholdMeters float64  `json:"threshold_meters"`
}

type Gate struct {
	cfg config.VicinityConfig
}

func NewGate(cfg config.VicinityConfig) *Gate {
	return &Gate{cfg: cfg}
}

func (g *Gate) Enabled() bool {
	return g.cfg.Enabled
}

// Threshold returns the radius for an action, or false for actions the gate
// does not know.
func (g *Gate) Threshold(action Action) (float64, bool) {
	switch action {
	case ActionPickup:
		return g.cfg.PickupMeters, true
	case ActionDeliver:
		return g.cfg.DeliverMeters, true
	case ActionFail:
		return g.cfg.FailMeters, true
	}
	return 0, false
}

// Check compares the current device position against the contract target.
// Both positions may be in any encoding geo.Parse understands.
func (g *Gate) Check(action Action, current, target any) Decision {
	threshold, known := g.Threshold(action)
	d := Decision{Action: action, ThresholdMeters: threshold}

	if km, ok := geo.Distance(current, target); ok {
		m := km * 1000
		d.DistanceMeters = &m
		d.Permitted = known && Permitted(&km, threshold)
	}
	if !g.cfg.Enabled {
		d.Permitted = true
		d.Bypassed = true
	}
	return d
}

// Permitted reports whether a known distance (km) lies within the threshold (m).
func Permitted(distanceKm *float64, thresholdMeters float64) bool {
	return distanceKm != nil && *distanceKm*1000 <= thresholdMeters
}
