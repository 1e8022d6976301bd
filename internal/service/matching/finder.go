package matching

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/pkg/logger"
)

// Config holds matching configuration
type Config struct {
	RadiusKM      float64 // search radius around the pickup point
	MaxCandidates int
}

// Query describes one candidate search.
type Query struct {
	Pickup   trip.Coordinate
	RadiusKM float64
	Limit    int
	// Exclude holds drivers that must not be offered, typically those already
	// serving an accepted or in-progress trip.
	Exclude map[string]struct{}
}

// Candidate is an online driver within the search radius, prior to ETA refinement.
type Candidate struct {
	Driver     *driver.Driver
	DistanceKM float64
}

// Service finds nearby drivers
type Service struct {
	drivers driver.Repository
	logger  *logger.Logger
	config  Config
}

// NewService creates a new matching service
func NewService(drivers driver.Repository, log *logger.Logger, config Config) *Service {
	if config.RadiusKM <= 0 {
		config.RadiusKM = 5
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 10
	}
	return &Service{
		drivers: drivers,
		logger:  log,
		config:  config,
	}
}

// Defaults returns a query pre-filled with the configured radius and limit.
func (s *Service) Defaults(pickup trip.Coordinate) Query {
	return Query{Pickup: pickup, RadiusKM: s.config.RadiusKM, Limit: s.config.MaxCandidates}
}

// FindCandidates returns up to q.Limit online drivers within q.RadiusKM of the
// pickup, nearest first. It never fails: a store error is logged and treated as
// "no drivers nearby".
func (s *Service) FindCandidates(ctx context.Context, q Query) []Candidate {
	startTime := time.Now()

	radius := q.RadiusKM
	if radius <= 0 {
		radius = s.config.RadiusKM
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.config.MaxCandidates
	}

	online, err := s.drivers.ListOnline(ctx)
	if err != nil {
		s.logger.Warn("Failed to list online drivers, returning no candidates", logger.Err(err))
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, len(online))
	for _, d := range online {
		if !d.IsOnline() {
			continue
		}
		if _, skip := q.Exclude[d.ID]; skip {
			continue
		}
		dist := CalculateDistance(q.Pickup.Lat, q.Pickup.Lng, d.CurrentLocation.Lat, d.CurrentLocation.Lng)
		if dist > radius {
			continue
		}
		candidates = append(candidates, Candidate{Driver: d, DistanceKM: dist})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.logger.Debug("Candidate search finished",
		logger.Int("online_drivers", len(online)),
		logger.Int("candidates", len(candidates)),
		logger.Float64("radius_km", radius),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	return candidates
}

// CalculateDistance calculates haversine distance between two points
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371 // kilometers

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
