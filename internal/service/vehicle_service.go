package service

import (
	"context"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"
	"parkhere/internal/entities"
)

type VehicleStore interface {
	ListVehicles(ctx context.Context, ownerID string) ([]db.Vehicle, error)
	CreateVehicle(ctx context.Context, v *db.Vehicle) error
	SetActiveVehicle(ctx context.Context, ownerID, vehicleID string) error
	DeleteVehicle(ctx context.Context, ownerID, vehicleID string) error
}

type VehicleService struct {
	store VehicleStore
}

func NewVehicleService(store VehicleStore) *VehicleService {
	return &VehicleService{store: store}
}

func (s *VehicleService) ListVehicles(ctx context.Context, ownerID string) ([]entities.VehicleResponse, error) {
	vehicles, err := s.store.ListVehicles(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	responses := make([]entities.VehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		responses = append(responses, *entities.NewVehicleResponse(&vehicles[i]))
	}
	return responses, nil
}

func (s *VehicleService) AddVehicle(ctx context.Context, ownerID, categoryStr, plate, color string) (*entities.VehicleResponse, error) {
	category, err := db.ParseCategory(categoryStr)
	if err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}
	if plate == "" {
		return nil, apperrors.InvalidArgument("plate is required")
	}
	vehicle := &db.Vehicle{
		OwnerID:  ownerID,
		Category: category,
		Plate:    plate,
		Color:    color,
	}
	if err := s.store.CreateVehicle(ctx, vehicle); err != nil {
		return nil, err
	}
	return entities.NewVehicleResponse(vehicle), nil
}

func (s *VehicleService) SetActiveVehicle(ctx context.Context, ownerID, vehicleID string) error {
	return s.store.SetActiveVehicle(ctx, ownerID, vehicleID)
}

func (s *VehicleService) DeleteVehicle(ctx context.Context, ownerID, vehicleID string) error {
	return s.store.DeleteVehicle(ctx, ownerID, vehicleID)
}
