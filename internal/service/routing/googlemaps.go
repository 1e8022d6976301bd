package routing

import (
	"context"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

// GoogleMapsProvider uses the Directions and Distance Matrix APIs
type GoogleMapsProvider struct {
	client *maps.Client
}

// NewGoogleMapsProvider creates a provider with the given API key. Extra client
// options (such as maps.WithBaseURL) are passed through.
func NewGoogleMapsProvider(apiKey string, opts ...maps.ClientOption) (*GoogleMapsProvider, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleMapsProvider{client: client}, nil
}

func (p *GoogleMapsProvider) Name() string { return "google_maps" }

// Route implements Provider
func (p *GoogleMapsProvider) Route(ctx context.Context, origin, destination trip.Coordinate) (*Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := p.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}

	best := routes[0]
	route := &Route{}
	for _, leg := range best.Legs {
		route.DistanceMeters += leg.Distance.Meters
		route.DurationSeconds += int(math.Round(leg.Duration.Seconds()))
	}

	points, err := best.OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode route polyline: %w", err)
	}
	route.Path = make([]trip.Coordinate, len(points))
	for i, pt := range points {
		route.Path[i] = trip.Coordinate{Lat: pt.Lat, Lng: pt.Lng}
	}
	return route, nil
}

// TravelTimes implements Provider
func (p *GoogleMapsProvider) TravelTimes(ctx context.Context, origins, destinations []trip.Coordinate) ([][]*TravelTime, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:      latLngs(origins),
		Destinations: latLngs(destinations),
		Mode:         maps.TravelModeDriving,
	}

	resp, err := p.client.DistanceMatrix(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}

	matrix := make([][]*TravelTime, len(resp.Rows))
	for i, row := range resp.Rows {
		matrix[i] = make([]*TravelTime, len(row.Elements))
		for j, el := range row.Elements {
			if el == nil || el.Status != "OK" {
				continue
			}
			matrix[i][j] = &TravelTime{
				DistanceMeters:  el.Distance.Meters,
				DurationSeconds: int(math.Round(el.Duration.Seconds())),
			}
		}
	}
	return matrix, nil
}

func latLng(c trip.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}

func latLngs(cs []trip.Coordinate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = latLng(c)
	}
	return out
}
