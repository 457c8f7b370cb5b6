package api

import (
	"net/http"

	"parkhere/internal/service"

	"github.com/gorilla/mux"
)

type LocationHandler struct {
	Service *service.LocationService
}

func NewLocationHandler(svc *service.LocationService) *LocationHandler {
	return &LocationHandler{Service: svc}
}

func (h *LocationHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	locations, err := h.Service.ListLocations(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	location, err := h.Service.GetLocation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, location)
}
