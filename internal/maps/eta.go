package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"bagdrop/internal/types"
)

// Estimate is a driving estimate between two points.
type Estimate struct {
	Duration time.Duration `json:"-"`
	Seconds  int64         `json:"duration_seconds"`
	Distance string        `json:"distance"`
	Meters   int           `json:"distance_meters"`
}

type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &RouteService{client: client}, nil
}

// Estimate returns the driving time and distance from origin to destination.
func (s *RouteService) Estimate(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return Estimate{
		Duration: leg.Duration,
		Seconds:  int64(leg.Duration / time.Second),
		Distance: leg.Distance.HumanReadable,
		Meters:   leg.Distance.Meters,
	}, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
