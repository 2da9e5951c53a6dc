// README: Google Maps geocoding: addresses for live positions, points for drop-off addresses.
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"bagdrop/internal/types"
)

var ErrNoResult = errors.New("no geocoding result")

// Geocoder handles interactions with the Google Geocoding API.
type Geocoder struct {
	client *maps.Client
}

func NewGeocoder(apiKey string) (*Geocoder, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &Geocoder{client: client}, nil
}

func newClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// ReverseGeocode returns the formatted address of the best match for p.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	resp, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	for _, r := range resp {
		if r.FormattedAddress != "" {
			return r.FormattedAddress, nil
		}
	}
	return "", ErrNoResult
}

// Geocode resolves a free-text address to a point.
func (g *Geocoder) Geocode(ctx context.Context, address string) (types.Point, error) {
	if address == "" {
		return types.Point{}, ErrNoResult
	}
	resp, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode: %w", err)
	}
	if len(resp) == 0 {
		return types.Point{}, ErrNoResult
	}
	loc := resp[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
