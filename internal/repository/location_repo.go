package repository

import (
	"context"
	"database/sql"
	"errors"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type LocationRepository struct {
	DB *sql.DB
}

func NewLocationRepository(database *sql.DB) *LocationRepository {
	return &LocationRepository{DB: database}
}

func (r *LocationRepository) ListLocations(ctx context.Context, category db.Category) ([]db.ParkingLocation, error) {
	query := `
		SELECT l.id, l.name, l.address, l.lat, l.lng, l.price_per_hour_cents, l.created_at
		FROM parking_locations l`
	args := []interface{}{}
	if category != "" {
		query += `
		WHERE EXISTS (
			SELECT 1 FROM location_capacity c
			WHERE c.location_id = l.id AND c.category = $1
		)`
		args = append(args, category)
	}
	query += `
		ORDER BY l.name`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateDBError(err)
	}
	defer rows.Close()

	var locations []db.ParkingLocation
	for rows.Next() {
		var l db.ParkingLocation
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &l.Lat, &l.Lng, &l.PricePerHourCents, &l.CreatedAt); err != nil {
			return nil, translateDBError(err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBError(err)
	}

	for i := range locations {
		capacity, err := r.capacityFor(ctx, locations[i].ID)
		if err != nil {
			return nil, err
		}
		locations[i].Capacity = capacity
	}
	return locations, nil
}

func (r *LocationRepository) Location(ctx context.Context, id string) (*db.ParkingLocation, error) {
	var l db.ParkingLocation
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, address, lat, lng, price_per_hour_cents, created_at
		 FROM parking_locations WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.Address, &l.Lat, &l.Lng, &l.PricePerHourCents, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("location")
	}
	if err != nil {
		return nil, translateDBError(err)
	}
	capacity, err := r.capacityFor(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Capacity = capacity
	return &l, nil
}

// Availability is an advisory snapshot; the authoritative check happens
// inside the reserve transaction.
func (r *LocationRepository) Availability(ctx context.Context, locationID string, category db.Category) (*db.CapacityBucket, error) {
	var b db.CapacityBucket
	err := r.DB.QueryRowContext(ctx,
		`SELECT available, total FROM location_capacity
		 WHERE location_id = $1 AND category = $2`,
		locationID, category,
	).Scan(&b.Available, &b.Total)
	if errors.Is(err, sql.ErrNoRows) {
		var locationExists bool
		if err := r.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM parking_locations WHERE id = $1)`,
			locationID,
		).Scan(&locationExists); err != nil {
			return nil, translateDBError(err)
		}
		if !locationExists {
			return nil, apperrors.NotFound("location")
		}
		return nil, apperrors.NotFound("capacity")
	}
	if err != nil {
		return nil, translateDBError(err)
	}
	return &b, nil
}

func (r *LocationRepository) CreateLocation(ctx context.Context, loc *db.ParkingLocation) error {
	loc.ID = uuid.NewString()
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO parking_locations (id, name, address, lat, lng, price_per_hour_cents)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		loc.ID, loc.Name, loc.Address, loc.Lat, loc.Lng, loc.PricePerHourCents,
	).Scan(&loc.CreatedAt)
	if err != nil {
		return translateDBError(err)
	}
	for category, bucket := range loc.Capacity {
		_, err := r.DB.ExecContext(ctx,
			`INSERT INTO location_capacity (location_id, category, total, available)
			 VALUES ($1, $2, $3, $4)`,
			loc.ID, category, bucket.Total, bucket.Available,
		)
		if err != nil {
			return translateDBError(err)
		}
	}
	return nil
}

// SetCapacity creates or resizes a bucket. Resizing a live bucket is an
// admin operation; the check constraint rejects available outside [0, total].
func (r *LocationRepository) SetCapacity(ctx context.Context, locationID string, category db.Category, total, available int) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO location_capacity (location_id, category, total, available)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (location_id, category)
		 DO UPDATE SET total = $3, available = $4`,
		locationID, category, total, available,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return apperrors.NotFound("location")
		}
		return translateDBError(err)
	}
	return nil
}

func (r *LocationRepository) capacityFor(ctx context.Context, locationID string) (map[db.Category]db.CapacityBucket, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT category, total, available FROM location_capacity WHERE location_id = $1`,
		locationID,
	)
	if err != nil {
		return nil, translateDBError(err)
	}
	defer rows.Close()

	capacity := make(map[db.Category]db.CapacityBucket)
	for rows.Next() {
		var category db.Category
		var b db.CapacityBucket
		if err := rows.Scan(&category, &b.Total, &b.Available); err != nil {
			return nil, translateDBError(err)
		}
		capacity[category] = b
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBError(err)
	}
	return capacity, nil
}
