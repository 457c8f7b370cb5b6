package api

import (
	"encoding/json"
	"net/http"

	"parkhere/internal/service"

	"github.com/gorilla/mux"
)

type AdminHandler struct {
	Locations *service.LocationService
}

func NewAdminHandler(locations *service.LocationService) *AdminHandler {
	return &AdminHandler{Locations: locations}
}

func (h *AdminHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	location, err := h.Locations.CreateLocation(r.Context(),
		req.Name, req.Address, req.Lat, req.Lng, req.PricePerHourCents, req.Capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, location)
}

func (h *AdminHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	locationID := vars["id"]
	category := vars["category"]
	var req UpdateCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.Locations.SetCapacity(r.Context(), locationID, category, req.Total, req.Available); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Capacity updated"})
}
