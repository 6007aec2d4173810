package handlers

import (
	"encoding/json"
	"net/http"

	"pinmap-server/middleware"
	"pinmap-server/models"
	"pinmap-server/services"
	apierrors "pinmap-server/utils/errors"
)

// MapHandler serves the map view: visible markers, the search box, and the
// pin-placement toggle.
type MapHandler struct {
	filter       *services.SearchFilter
	coordinator  *services.MutationCoordinator
	connectivity *services.ConnectivityMonitor
}

func NewMapHandler(filter *services.SearchFilter, coordinator *services.MutationCoordinator, connectivity *services.ConnectivityMonitor) *MapHandler {
	return &MapHandler{filter: filter, coordinator: coordinator, connectivity: connectivity}
}

type markersResponse struct {
	Markers []*models.MarkerHandle `json:"markers"`
	Count   int                    `json:"count"`
	Query   string                 `json:"query"`
	Online  bool                   `json:"online"`
}

// GetMarkers returns the markers visible under the current search query.
func (h *MapHandler) GetMarkers(w http.ResponseWriter, r *http.Request) {
	visible := h.filter.Visible()
	markers := make([]*models.MarkerHandle, 0, len(visible))
	for _, vm := range visible {
		markers = append(markers, vm.Marker)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markersResponse{
		Markers: markers,
		Count:   len(markers),
		Query:   h.filter.Query(),
		Online:  h.connectivity.Online(),
	})
}

// Search feeds a typed query into the debounced filter.
func (h *MapHandler) Search(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}
	h.filter.UpdateQuery(input.Query)
	w.WriteHeader(http.StatusAccepted)
}

// TogglePlacing arms or cancels pin placement.
func (h *MapHandler) TogglePlacing(w http.ResponseWriter, r *http.Request) {
	state := h.coordinator.TogglePlacing()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"state": state.String()})
}

// DropPin records the clicked coordinates as the pending pin.
func (h *MapHandler) DropPin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}
	if err := h.coordinator.DropPin(input.Lat, input.Lon); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"state": h.coordinator.State().String()})
}

// CancelPlacing abandons any in-progress placement or edit.
func (h *MapHandler) CancelPlacing(w http.ResponseWriter, r *http.Request) {
	h.coordinator.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
