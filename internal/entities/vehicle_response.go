package entities

import "parkhere/internal/db"

type VehicleResponse struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Plate    string `json:"plate"`
	Color    string `json:"color"`
	IsActive bool   `json:"is_active"`
}

func NewVehicleResponse(v *db.Vehicle) *VehicleResponse {
	return &VehicleResponse{
		ID:       v.ID,
		Category: string(v.Category),
		Plate:    v.Plate,
		Color:    v.Color,
		IsActive: v.IsActive,
	}
}
