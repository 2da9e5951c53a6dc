// Package geo contains pure geographic helpers: point geometry parsing and
// great-circle distance.
package geo

import (
	"math"
	"strconv"
	"strings"

	"bagdrop/internal/types"
)

const (
	earthRadiusKm = 6371.0

	// SRID is the spatial reference every stored geometry uses (WGS84).
	SRID = 4326
)

// DistanceKm returns the haversine distance in kilometres between two points.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// Distance parses both geometries and returns the distance between them.
// The second result is false when either side is absent or malformed.
func Distance(a, b any) (float64, bool) {
	pa, ok := Parse(a)
	if !ok {
		return 0, false
	}
	pb, ok := Parse(b)
	if !ok {
		return 0, false
	}
	return DistanceKm(pa, pb), true
}

// Parse accepts the geometry encodings seen at the API boundary:
//   - "POINT(lon lat)", optionally prefixed with "SRID=4326;"
//   - types.Point / *types.Point
//   - GeoJSON-like maps {"coordinates": [lon, lat]}
//   - maps with latitude/longitude or lat/lng keys
//
// It never panics; anything it cannot read yields false.
func Parse(v any) (types.Point, bool) {
	switch g := v.(type) {
	case nil:
		return types.Point{}, false
	case string:
		return ParseString(g)
	case *string:
		if g == nil {
			return types.Point{}, false
		}
		return ParseString(*g)
	case types.Point:
		return checked(g.Lat, g.Lng)
	case *types.Point:
		if g == nil {
			return types.Point{}, false
		}
		return checked(g.Lat, g.Lng)
	case map[string]any:
		return parseObject(g)
	}
	return types.Point{}, false
}

// ParseString reads a WKT/EWKT point. The first number is the longitude,
// the second the latitude.
func ParseString(s string) (types.Point, bool) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ";"); i >= 0 {
		s = s[i+1:]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !isNumeric(r)
	})
	if len(fields) < 2 {
		return types.Point{}, false
	}
	lng, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return types.Point{}, false
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return types.Point{}, false
	}
	return checked(lat, lng)
}

// Format renders p as EWKT, the form PostGIS accepts in ST_GeogFromText.
func Format(p types.Point) string {
	return "SRID=" + strconv.Itoa(SRID) + ";POINT(" +
		strconv.FormatFloat(p.Lng, 'f', -1, 64) + " " +
		strconv.FormatFloat(p.Lat, 'f', -1, 64) + ")"
}

func parseObject(m map[string]any) (types.Point, bool) {
	if raw, ok := m["coordinates"]; ok {
		coords, ok := toFloats(raw)
		if !ok || len(coords) < 2 {
			return types.Point{}, false
		}
		return checked(coords[1], coords[0])
	}
	for _, keys := range [][2]string{{"latitude", "longitude"}, {"lat", "lng"}} {
		latRaw, okLat := m[keys[0]]
		lngRaw, okLng := m[keys[1]]
		if !okLat || !okLng {
			continue
		}
		lat, ok1 := toFloat(latRaw)
		lng, ok2 := toFloat(lngRaw)
		if !ok1 || !ok2 {
			return types.Point{}, false
		}
		return checked(lat, lng)
	}
	return types.Point{}, false
}

func toFloats(v any) ([]float64, bool) {
	switch c := v.(type) {
	case []float64:
		return c, true
	case []any:
		out := make([]float64, 0, len(c))
		for _, item := range c {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func checked(lat, lng float64) (types.Point, bool) {
	if !isFinite(lat) || !isFinite(lng) {
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isNumeric(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E'
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
