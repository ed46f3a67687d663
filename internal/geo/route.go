package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/rider-agent/internal/models"
)

// ParseRoute parses a "lat,lng;lat,lng;..." string into route points for the
// simulated sampler.
func ParseRoute(s string) ([]models.Coordinate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]models.Coordinate, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ll := strings.Split(p, ",")
		if len(ll) != 2 {
			return nil, fmt.Errorf("bad route point %q", p)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(ll[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude in %q: %w", p, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(ll[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude in %q: %w", p, err)
		}
		out = append(out, models.Coordinate{Lat: lat, Lng: lng})
	}
	return out, nil
}
