package pricing

import (
	"math"

	"github.com/gocomet/ridematch/internal/domain/trip"
)

// Rate is the {base, perKilometer} pair of one vehicle tier.
type Rate struct {
	Base         float64
	PerKilometer float64
}

// Config holds pricing configuration
type Config struct {
	Rates       map[trip.VehicleType]Rate
	DefaultTier trip.VehicleType
}

// DefaultConfig returns the built-in tariff.
func DefaultConfig() Config {
	return Config{
		Rates: map[trip.VehicleType]Rate{
			trip.VehicleMotorbike: {Base: 1.00, PerKilometer: 0.50},
			trip.VehicleFourSeat:  {Base: 2.00, PerKilometer: 1.00},
			trip.VehicleSevenSeat: {Base: 3.00, PerKilometer: 1.50},
		},
		DefaultTier: trip.DefaultVehicleType,
	}
}

// Calculator computes fares. It holds no mutable state, so one instance is shared by
// the estimate and request paths.
type Calculator struct {
	config Config
}

// NewCalculator creates a new pricing calculator
func NewCalculator(config Config) *Calculator {
	if config.DefaultTier == "" {
		config.DefaultTier = trip.DefaultVehicleType
	}
	return &Calculator{config: config}
}

// ComputeFare returns base + km * perKilometer rounded half-up to cents.
// Vehicle types without a configured rate are priced at the default tier.
func (c *Calculator) ComputeFare(vehicleType trip.VehicleType, distanceMeters int) float64 {
	rate := c.RateFor(vehicleType)
	if distanceMeters < 0 {
		distanceMeters = 0
	}
	fare := rate.Base + (float64(distanceMeters)/1000)*rate.PerKilometer
	return RoundHalfUp(fare)
}

// RateFor resolves the rate applied to a vehicle type.
func (c *Calculator) RateFor(vehicleType trip.VehicleType) Rate {
	if rate, ok := c.config.Rates[vehicleType]; ok {
		return rate
	}
	if normalised, _ := trip.ParseVehicleType(string(vehicleType)); normalised != vehicleType {
		if rate, ok := c.config.Rates[normalised]; ok {
			return rate
		}
	}
	return c.config.Rates[c.config.DefaultTier]
}

// RoundHalfUp rounds a non-negative amount to 2 decimals, halves going up.
// The epsilon absorbs binary representation error (1.005 is stored as 1.00499…).
func RoundHalfUp(amount float64) float64 {
	return math.Floor(amount*100+0.5+1e-9) / 100
}
