package api

import (
	"encoding/json"
	"net/http"

	"parkhere/internal/apperrors"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateVehicleRequest struct {
	Category string `json:"category"`
	Plate    string `json:"plate"`
	Color    string `json:"color"`
}

type StartSessionRequest struct {
	VehicleID  string `json:"vehicle_id"`
	LocationID string `json:"location_id"`
}

type CreateLocationRequest struct {
	Name              string         `json:"name"`
	Address           string         `json:"address"`
	Lat               float64        `json:"lat"`
	Lng               float64        `json:"lng"`
	PricePerHourCents int64          `json:"price_per_hour_cents"`
	Capacity          map[string]int `json:"capacity"`
}

type UpdateCapacityRequest struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP. Untagged errors become a
// plain 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
