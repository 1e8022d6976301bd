package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
)

// DriverRepository reads and updates driver availability records
type DriverRepository struct {
	db *sql.DB
}

// NewDriverRepository creates a new driver repository
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

const driverColumns = `id, vehicle_type, plate, online_status, lat, lng, last_location_update`

// Get implements driver.Repository
func (r *DriverRepository) Get(ctx context.Context, id string) (*driver.Driver, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driver.ErrDriverNotFound
	}
	return d, err
}

// ListOnline implements driver.Repository
func (r *DriverRepository) ListOnline(ctx context.Context) ([]*driver.Driver, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE online_status = $1 ORDER BY id`, string(driver.StatusOnline))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drivers := make([]*driver.Driver, 0)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

// UpdateLocation implements driver.Repository
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, loc trip.Coordinate, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE drivers SET lat = $2, lng = $3, last_location_update = $4 WHERE id = $1`,
		id, loc.Lat, loc.Lng, at)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateStatus implements driver.Repository
func (r *DriverRepository) UpdateStatus(ctx context.Context, id string, status driver.OnlineStatus) error {
	if !status.IsValid() {
		return driver.ErrInvalidDriverStatus
	}
	result, err := r.db.ExecContext(ctx, `UPDATE drivers SET online_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Upsert implements driver.Repository
func (r *DriverRepository) Upsert(ctx context.Context, d *driver.Driver) error {
	query := `
		INSERT INTO drivers (` + driverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			vehicle_type = EXCLUDED.vehicle_type,
			plate = EXCLUDED.plate,
			online_status = EXCLUDED.online_status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			last_location_update = EXCLUDED.last_location_update
	`
	var lastUpdate sql.NullTime
	if !d.LastLocationUpdate.IsZero() {
		lastUpdate = sql.NullTime{Time: d.LastLocationUpdate, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		d.ID, string(d.Vehicle.Type), d.Vehicle.Plate, string(d.OnlineStatus),
		d.CurrentLocation.Lat, d.CurrentLocation.Lng, lastUpdate)
	return err
}

func scanDriver(s scanner) (*driver.Driver, error) {
	var (
		d           driver.Driver
		vehicleType string
		status      string
		lastUpdate  sql.NullTime
	)
	err := s.Scan(&d.ID, &vehicleType, &d.Vehicle.Plate, &status,
		&d.CurrentLocation.Lat, &d.CurrentLocation.Lng, &lastUpdate)
	if err != nil {
		return nil, err
	}
	d.Vehicle.Type, _ = trip.ParseVehicleType(vehicleType)
	d.OnlineStatus = driver.OnlineStatus(status)
	if lastUpdate.Valid {
		d.LastLocationUpdate = lastUpdate.Time
	}
	return &d, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrDriverNotFound
	}
	return nil
}
