package maps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"bagdrop/internal/types"
)

func fakeMaps(t *testing.T, body any) *maps.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	c, err := maps.NewClient(maps.WithAPIKey("test-key"), maps.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return c
}

func TestReverseGeocode(t *testing.T) {
	g := &Geocoder{client: fakeMaps(t, map[string]any{
		"status": "OK",
		"results": []map[string]any{
			{"formatted_address": "Terminal 1, Taoyuan Airport"},
		},
	})}

	addr, err := g.ReverseGeocode(context.Background(), types.Point{Lat: 25.08, Lng: 121.23})
	require.NoError(t, err)
	assert.Equal(t, "Terminal 1, Taoyuan Airport", addr)
}

func TestGeocode_NoResult(t *testing.T) {
	g := &Geocoder{client: fakeMaps(t, map[string]any{"status": "ZERO_RESULTS", "results": []any{}})}

	_, err := g.Geocode(context.Background(), "nowhere")
	assert.Error(t, err)

	_, err = g.Geocode(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestGeocode(t *testing.T) {
	g := &Geocoder{client: fakeMaps(t, map[string]any{
		"status": "OK",
		"results": []map[string]any{
			{"geometry": map[string]any{"location": map[string]any{"lat": 14.5995, "lng": 120.9842}}},
		},
	})}

	p, err := g.Geocode(context.Background(), "Manila")
	require.NoError(t, err)
	assert.InDelta(t, 14.5995, p.Lat, 1e-9)
	assert.InDelta(t, 120.9842, p.Lng, 1e-9)
}
