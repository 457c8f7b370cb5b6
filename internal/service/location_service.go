package service

import (
	"context"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"
	"parkhere/internal/entities"
)

type LocationCatalog interface {
	LocationStore
	ListLocations(ctx context.Context, category db.Category) ([]db.ParkingLocation, error)
	CreateLocation(ctx context.Context, loc *db.ParkingLocation) error
	SetCapacity(ctx context.Context, locationID string, category db.Category, total, available int) error
}

type LocationService struct {
	catalog LocationCatalog
}

func NewLocationService(catalog LocationCatalog) *LocationService {
	return &LocationService{catalog: catalog}
}

func (s *LocationService) ListLocations(ctx context.Context, categoryFilter string) ([]entities.LocationResponse, error) {
	var category db.Category
	if categoryFilter != "" {
		parsed, err := db.ParseCategory(categoryFilter)
		if err != nil {
			return nil, apperrors.InvalidArgument(err.Error())
		}
		category = parsed
	}
	locations, err := s.catalog.ListLocations(ctx, category)
	if err != nil {
		return nil, err
	}
	responses := make([]entities.LocationResponse, 0, len(locations))
	for i := range locations {
		responses = append(responses, *entities.NewLocationResponse(&locations[i]))
	}
	return responses, nil
}

func (s *LocationService) GetLocation(ctx context.Context, id string) (*entities.LocationResponse, error) {
	location, err := s.catalog.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	return entities.NewLocationResponse(location), nil
}

func (s *LocationService) CreateLocation(ctx context.Context, name, address string, lat, lng float64, pricePerHourCents int64, capacity map[string]int) (*entities.LocationResponse, error) {
	if name == "" {
		return nil, apperrors.InvalidArgument("name is required")
	}
	if pricePerHourCents < 0 {
		return nil, apperrors.InvalidArgument("price must be nonnegative")
	}
	location := &db.ParkingLocation{
		Name:              name,
		Address:           address,
		Lat:               lat,
		Lng:               lng,
		PricePerHourCents: pricePerHourCents,
		Capacity:          make(map[db.Category]db.CapacityBucket, len(capacity)),
	}
	for categoryStr, total := range capacity {
		category, err := db.ParseCategory(categoryStr)
		if err != nil {
			return nil, apperrors.InvalidArgument(err.Error())
		}
		if total < 0 {
			return nil, apperrors.InvalidArgument("capacity must be nonnegative")
		}
		location.Capacity[category] = db.CapacityBucket{Total: total, Available: total}
	}
	if err := s.catalog.CreateLocation(ctx, location); err != nil {
		return nil, err
	}
	return entities.NewLocationResponse(location), nil
}

func (s *LocationService) SetCapacity(ctx context.Context, locationID, categoryStr string, total, available int) error {
	category, err := db.ParseCategory(categoryStr)
	if err != nil {
		return apperrors.InvalidArgument(err.Error())
	}
	if total < 0 || available < 0 || available > total {
		return apperrors.InvalidArgument("capacity requires 0 <= available <= total")
	}
	return s.catalog.SetCapacity(ctx, locationID, category, total, available)
}
