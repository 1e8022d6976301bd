package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/matching"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
)

var (
	// ErrNoRoute is returned by providers when no drivable route exists.
	ErrNoRoute = errors.New("no route found")
	// ErrTravelTimesUnavailable is returned when the provider cannot compute a matrix.
	ErrTravelTimesUnavailable = errors.New("travel times unavailable")
)

// Route is the path between two points
type Route struct {
	DistanceMeters  int               `json:"distance"`
	DurationSeconds int               `json:"duration"`
	Path            []trip.Coordinate `json:"path"`
}

// TravelTime is one cell of a travel-time matrix
type TravelTime struct {
	DistanceMeters  int
	DurationSeconds int
}

// Provider is an external routing backend
type Provider interface {
	Name() string
	Route(ctx context.Context, origin, destination trip.Coordinate) (*Route, error)
	// TravelTimes returns a len(origins) x len(destinations) matrix with a nil cell
	// for every unreachable pair.
	TravelTimes(ctx context.Context, origins, destinations []trip.Coordinate) ([][]*TravelTime, error)
}

// Config holds routing configuration
type Config struct {
	Timeout time.Duration // per attempt
	Retries int
}

// RankedCandidate is a candidate with its driving ETA to the pickup, when known
type RankedCandidate struct {
	matching.Candidate
	ETASeconds *int
}

// Service wraps a Provider with timeouts, a bounded retry and ETA ranking
type Service struct {
	provider Provider
	logger   *logger.Logger
	config   Config
}

// NewService creates a new routing service
func NewService(provider Provider, log *logger.Logger, config Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &Service{provider: provider, logger: log, config: config}
}

// CalculateRoute returns the driving route between two points. Every attempt is
// bounded by the configured timeout. After the retries are exhausted the failure is
// logged as a dependency error and surfaced as ROUTE_UNAVAILABLE.
func (s *Service) CalculateRoute(ctx context.Context, origin, destination trip.Coordinate) (*Route, error) {
	var lastErr error
	name := s.provider.Name()

	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		route, err := s.attempt(ctx, origin, destination)
		if err == nil {
			monitoring.RouteRequests.WithLabelValues(name, "ok").Inc()
			return route, nil
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, ErrNoRoute) {
			break
		}
		s.logger.Warn("Route provider attempt failed",
			logger.String("provider", name),
			logger.Int("attempt", attempt+1),
			logger.Err(err),
		)
	}

	monitoring.RouteRequests.WithLabelValues(name, "failed").Inc()
	s.logger.Error("Route provider unavailable",
		logger.String("provider", name),
		logger.Float64("origin_lat", origin.Lat),
		logger.Float64("origin_lng", origin.Lng),
		logger.Float64("destination_lat", destination.Lat),
		logger.Float64("destination_lng", destination.Lng),
		logger.Err(lastErr),
	)
	return nil, apperrors.RouteUnavailable(lastErr)
}

func (s *Service) attempt(ctx context.Context, origin, destination trip.Coordinate) (*Route, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	route, err := s.provider.Route(attemptCtx, origin, destination)
	monitoring.RouteLatency.WithLabelValues(s.provider.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if route == nil || len(route.Path) == 0 {
		return nil, ErrNoRoute
	}
	if route.DistanceMeters < 0 {
		return nil, fmt.Errorf("provider returned negative distance %d", route.DistanceMeters)
	}
	return route, nil
}

// GetTravelTimes returns the travel-time matrix, bounded by the configured timeout.
func (s *Service) GetTravelTimes(ctx context.Context, origins, destinations []trip.Coordinate) ([][]*TravelTime, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return [][]*TravelTime{}, nil
	}

	matrixCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	matrix, err := s.provider.TravelTimes(matrixCtx, origins, destinations)
	if err != nil {
		if errors.Is(err, ErrTravelTimesUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTravelTimesUnavailable, err)
	}
	if len(matrix) != len(origins) {
		return nil, fmt.Errorf("%w: provider returned %d rows for %d origins", ErrTravelTimesUnavailable, len(matrix), len(origins))
	}
	return matrix, nil
}

// RankByTravelTime orders candidates by driving ETA to the pickup. Candidates
// without an ETA keep their straight-line order behind those that have one. On any
// matrix failure the straight-line order is returned unchanged.
func (s *Service) RankByTravelTime(ctx context.Context, candidates []matching.Candidate, pickup trip.Coordinate) []RankedCandidate {
	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedCandidate{Candidate: c}
	}
	if len(candidates) == 0 {
		return ranked
	}

	origins := make([]trip.Coordinate, len(candidates))
	for i, c := range candidates {
		origins[i] = c.Driver.CurrentLocation
	}

	matrix, err := s.GetTravelTimes(ctx, origins, []trip.Coordinate{pickup})
	if err != nil {
		s.logger.Debug("Falling back to straight-line candidate order", logger.Err(err))
		return ranked
	}

	for i, row := range matrix {
		if len(row) == 0 || row[0] == nil {
			continue
		}
		eta := row[0].DurationSeconds
		ranked[i].ETASeconds = &eta
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].ETASeconds, ranked[j].ETASeconds
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		default:
			return false
		}
	})
	return ranked
}
