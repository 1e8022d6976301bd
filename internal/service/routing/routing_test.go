package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/matching"
	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/logger"
)

type fakeProvider struct {
	calls   int32
	route   func(ctx context.Context, call int32) (*Route, error)
	matrix  [][]*TravelTime
	matrErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Route(ctx context.Context, origin, destination trip.Coordinate) (*Route, error) {
	call := atomic.AddInt32(&f.calls, 1)
	return f.route(ctx, call)
}

func (f *fakeProvider) TravelTimes(ctx context.Context, origins, destinations []trip.Coordinate) ([][]*TravelTime, error) {
	return f.matrix, f.matrErr
}

var (
	origin      = trip.Coordinate{Lat: 10.7769, Lng: 106.7009}
	destination = trip.Coordinate{Lat: 10.8231, Lng: 106.6297}
	okRoute     = &Route{DistanceMeters: 10000, DurationSeconds: 900, Path: []trip.Coordinate{origin, destination}}
)

func TestCalculateRoute_RetriesOnceThenSucceeds(t *testing.T) {
	p := &fakeProvider{route: func(ctx context.Context, call int32) (*Route, error) {
		if call == 1 {
			return nil, errors.New("upstream 503")
		}
		return okRoute, nil
	}}
	svc := NewService(p, logger.NewNop(), Config{Timeout: time.Second, Retries: 1})

	route, err := svc.CalculateRoute(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.Equal(t, 10000, route.DistanceMeters)
	assert.Equal(t, int32(2), p.calls)
}

func TestCalculateRoute_TimeoutBecomesRouteUnavailable(t *testing.T) {
	p := &fakeProvider{route: func(ctx context.Context, call int32) (*Route, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := NewService(p, logger.NewNop(), Config{Timeout: 20 * time.Millisecond, Retries: 1})

	start := time.Now()
	_, err := svc.CalculateRoute(context.Background(), origin, destination)

	assert.ErrorIs(t, err, apperrors.ErrRouteUnavailable)
	assert.Equal(t, int32(2), p.calls, "one bounded retry")
	assert.Less(t, time.Since(start), time.Second)
}

func TestCalculateRoute_EmptyPathIsUnavailable(t *testing.T) {
	p := &fakeProvider{route: func(ctx context.Context, call int32) (*Route, error) {
		return &Route{DistanceMeters: 100}, nil
	}}
	svc := NewService(p, logger.NewNop(), Config{Timeout: time.Second, Retries: 1})

	_, err := svc.CalculateRoute(context.Background(), origin, destination)
	assert.ErrorIs(t, err, apperrors.ErrRouteUnavailable)
	assert.Equal(t, int32(1), p.calls, "a missing route is not retried")
}

func candidate(id string, km float64) matching.Candidate {
	return matching.Candidate{
		Driver:     &driver.Driver{ID: id, OnlineStatus: driver.StatusOnline},
		DistanceKM: km,
	}
}

func TestRankByTravelTime(t *testing.T) {
	eta := func(s int) *TravelTime { return &TravelTime{DurationSeconds: s} }
	p := &fakeProvider{matrix: [][]*TravelTime{{eta(600)}, {nil}, {eta(120)}}}
	svc := NewService(p, logger.NewNop(), Config{})

	ranked := svc.RankByTravelTime(context.Background(),
		[]matching.Candidate{candidate("a", 0.5), candidate("b", 0.7), candidate("c", 1.2)}, origin)

	require.Len(t, ranked, 3)
	assert.Equal(t, "c", ranked[0].Driver.ID)
	assert.Equal(t, 120, *ranked[0].ETASeconds)
	assert.Equal(t, "a", ranked[1].Driver.ID)
	assert.Equal(t, "b", ranked[2].Driver.ID)
	assert.Nil(t, ranked[2].ETASeconds)
}

func TestRankByTravelTime_FallsBackToStraightLine(t *testing.T) {
	svc := NewService(NewStraightLineProvider(30), logger.NewNop(), Config{})

	ranked := svc.RankByTravelTime(context.Background(),
		[]matching.Candidate{candidate("a", 0.5), candidate("b", 0.7)}, origin)

	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Driver.ID)
	assert.Nil(t, ranked[0].ETASeconds)
	assert.Equal(t, "b", ranked[1].Driver.ID)
}

func TestStraightLineProvider(t *testing.T) {
	p := NewStraightLineProvider(36) // 10 m/s

	route, err := p.Route(context.Background(), trip.Coordinate{Lat: 0, Lng: 0}, trip.Coordinate{Lat: 0.1, Lng: 0})
	require.NoError(t, err)
	assert.InDelta(t, 11119, route.DistanceMeters, 5)
	assert.InDelta(t, 1112, route.DurationSeconds, 2)
	assert.Len(t, route.Path, 2)

	_, err = p.TravelTimes(context.Background(), []trip.Coordinate{origin}, []trip.Coordinate{destination})
	assert.ErrorIs(t, err, ErrTravelTimesUnavailable)
}

const directionsJSON = `{
  "status": "OK",
  "geocoded_waypoints": [],
  "routes": [{
    "summary": "test",
    "overview_polyline": {"points": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@"},
    "legs": [{
      "distance": {"text": "10 km", "value": 10000},
      "duration": {"text": "15 mins", "value": 900},
      "steps": []
    }]
  }]
}`

const matrixJSON = `{
  "status": "OK",
  "origin_addresses": ["a", "b"],
  "destination_addresses": ["p"],
  "rows": [
    {"elements": [{"status": "OK", "duration": {"text": "5 mins", "value": 300}, "distance": {"text": "2 km", "value": 2000}}]},
    {"elements": [{"status": "ZERO_RESULTS"}]}
  ]
}`

func TestGoogleMapsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "directions"):
			_, _ = w.Write([]byte(directionsJSON))
		case strings.Contains(r.URL.Path, "distancematrix"):
			_, _ = w.Write([]byte(matrixJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := NewGoogleMapsProvider("test-key", maps.WithBaseURL(srv.URL))
	require.NoError(t, err)

	route, err := p.Route(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.Equal(t, 10000, route.DistanceMeters)
	assert.Equal(t, 900, route.DurationSeconds)
	require.Len(t, route.Path, 3)
	assert.InDelta(t, 38.5, route.Path[0].Lat, 1e-6)
	assert.InDelta(t, -120.2, route.Path[0].Lng, 1e-6)

	matrix, err := p.TravelTimes(context.Background(), []trip.Coordinate{origin, destination}, []trip.Coordinate{origin})
	require.NoError(t, err)
	require.Len(t, matrix, 2)
	require.NotNil(t, matrix[0][0])
	assert.Equal(t, 300, matrix[0][0].DurationSeconds)
	assert.Nil(t, matrix[1][0])
}
