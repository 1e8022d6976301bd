package routing

import (
	"context"
	"math"

	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/matching"
)

// StraightLineProvider estimates routes from great-circle distance at a fixed
// average speed. It is used when no routing API is configured.
type StraightLineProvider struct {
	averageSpeedKMH float64
}

// NewStraightLineProvider creates a provider; non-positive speeds default to 30 km/h.
func NewStraightLineProvider(averageSpeedKMH float64) *StraightLineProvider {
	if averageSpeedKMH <= 0 {
		averageSpeedKMH = 30
	}
	return &StraightLineProvider{averageSpeedKMH: averageSpeedKMH}
}

func (p *StraightLineProvider) Name() string { return "straight_line" }

// Route implements Provider
func (p *StraightLineProvider) Route(ctx context.Context, origin, destination trip.Coordinate) (*Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	km := matching.CalculateDistance(origin.Lat, origin.Lng, destination.Lat, destination.Lng)
	return &Route{
		DistanceMeters:  int(math.Round(km * 1000)),
		DurationSeconds: int(math.Round(km / p.averageSpeedKMH * 3600)),
		Path:            []trip.Coordinate{origin, destination},
	}, nil
}

// TravelTimes implements Provider. Straight-line ETAs would only restate the
// candidate order, so the matrix is reported as unavailable.
func (p *StraightLineProvider) TravelTimes(ctx context.Context, origins, destinations []trip.Coordinate) ([][]*TravelTime, error) {
	return nil, ErrTravelTimesUnavailable
}
