package repository

import (
	"context"
	"database/sql"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"

	"github.com/google/uuid"
)

type VehicleRepository struct {
	DB *sql.DB
}

func NewVehicleRepository(database *sql.DB) *VehicleRepository {
	return &VehicleRepository{DB: database}
}

func (r *VehicleRepository) ListVehicles(ctx context.Context, ownerID string) ([]db.Vehicle, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, owner_id, category, plate, color, is_active, created_at
		 FROM vehicles WHERE owner_id = $1 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, translateDBError(err)
	}
	defer rows.Close()

	var vehicles []db.Vehicle
	for rows.Next() {
		var v db.Vehicle
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Category, &v.Plate, &v.Color, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, translateDBError(err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBError(err)
	}
	return vehicles, nil
}

func (r *VehicleRepository) CreateVehicle(ctx context.Context, v *db.Vehicle) error {
	v.ID = uuid.NewString()
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO vehicles (id, owner_id, category, plate, color, is_active)
		 VALUES ($1, $2, $3, $4, $5, FALSE)
		 RETURNING created_at`,
		v.ID, v.OwnerID, v.Category, v.Plate, v.Color,
	).Scan(&v.CreatedAt)
	if err != nil {
		return translateDBError(err)
	}
	return nil
}

// SetActiveVehicle flips the owner's active flag to the given vehicle in one
// transaction, keeping the one-active-per-owner invariant (also enforced by
// a partial unique index).
func (r *VehicleRepository) SetActiveVehicle(ctx context.Context, ownerID, vehicleID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.BackendUnavailable(err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1 AND owner_id = $2)`,
		vehicleID, ownerID,
	).Scan(&exists)
	if err != nil {
		return translateDBError(err)
	}
	if !exists {
		return apperrors.NotFound("vehicle")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE vehicles SET is_active = FALSE WHERE owner_id = $1 AND is_active`,
		ownerID,
	); err != nil {
		return translateDBError(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE vehicles SET is_active = TRUE WHERE id = $1`,
		vehicleID,
	); err != nil {
		return translateDBError(err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.BackendUnavailable(err)
	}
	return nil
}

func (r *VehicleRepository) DeleteVehicle(ctx context.Context, ownerID, vehicleID string) error {
	result, err := r.DB.ExecContext(ctx,
		`DELETE FROM vehicles WHERE id = $1 AND owner_id = $2`,
		vehicleID, ownerID,
	)
	if err != nil {
		return translateDBError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return translateDBError(err)
	}
	if n == 0 {
		return apperrors.NotFound("vehicle")
	}
	return nil
}
