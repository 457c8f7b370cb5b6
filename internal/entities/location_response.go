package entities

import "parkhere/internal/db"

type CapacityResponse struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

type LocationResponse struct {
	ID                string                      `json:"id"`
	Name              string                      `json:"name"`
	Address           string                      `json:"address"`
	Lat               float64                     `json:"lat"`
	Lng               float64                     `json:"lng"`
	PricePerHourCents int64                       `json:"price_per_hour_cents"`
	Capacity          map[string]CapacityResponse `json:"capacity"`
}

func NewLocationResponse(l *db.ParkingLocation) *LocationResponse {
	resp := &LocationResponse{
		ID:                l.ID,
		Name:              l.Name,
		Address:           l.Address,
		Lat:               l.Lat,
		Lng:               l.Lng,
		PricePerHourCents: l.PricePerHourCents,
		Capacity:          make(map[string]CapacityResponse, len(l.Capacity)),
	}
	for category, bucket := range l.Capacity {
		resp.Capacity[string(category)] = CapacityResponse{
			Total:     bucket.Total,
			Available: bucket.Available,
		}
	}
	return resp
}
