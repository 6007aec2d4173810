package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"pinmap-server/middleware"
	"pinmap-server/services"
	apierrors "pinmap-server/utils/errors"
)

// Multipart forms are parsed with this memory ceiling; the 5 MB image cap is
// enforced at staging so oversized files get the proper rejection message.
const maxUploadMemory = 16 << 20

type LocationHandler struct {
	coordinator *services.MutationCoordinator
	docs        services.LocationWriter
}

func NewLocationHandler(coordinator *services.MutationCoordinator, docs services.LocationWriter) *LocationHandler {
	return &LocationHandler{coordinator: coordinator, docs: docs}
}

// GetLocation serves the details view behind a marker popup's link.
func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	record, err := h.docs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, apierrors.ErrNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

type mutationResponse struct {
	ID       string   `json:"id,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// CreateLocation persists a new pin at the pending placement. A rejected or
// failed image never blocks the record itself; the response carries warnings
// instead.
func (h *LocationHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, apierrors.ErrUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}

	var warnings []string
	if msg, err := h.stageUpload(r); err != nil {
		middleware.WriteError(w, err)
		return
	} else if msg != "" {
		warnings = append(warnings, msg)
	}

	result, err := h.coordinator.Create(r.Context(), userID, services.CreateInput{
		Title:   r.FormValue("title"),
		Notes:   r.FormValue("notes"),
		Address: r.FormValue("address"),
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if result.Warning != nil {
		warnings = append(warnings, result.Warning.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(mutationResponse{ID: result.ID, Warnings: warnings})
}

// UpdateLocation rewrites the pin being edited, optionally replacing its
// image.
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, apierrors.ErrUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}

	h.coordinator.BeginEdit(mux.Vars(r)["id"])

	var warnings []string
	if msg, err := h.stageUpload(r); err != nil {
		h.coordinator.CancelEdit()
		middleware.WriteError(w, err)
		return
	} else if msg != "" {
		warnings = append(warnings, msg)
	}

	result, err := h.coordinator.Update(r.Context(), userID, services.UpdateInput{
		Title:   r.FormValue("title"),
		Notes:   r.FormValue("notes"),
		Address: r.FormValue("address"),
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if result.Warning != nil {
		warnings = append(warnings, result.Warning.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mutationResponse{ID: result.ID, Warnings: warnings})
}

// DeleteLocation removes a pin. The destructive-action acknowledgment is the
// confirmed query flag; without it nothing happens.
func (h *LocationHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, apierrors.ErrUnauthorized)
		return
	}
	confirmed := r.URL.Query().Get("confirmed") == "true"
	if err := h.coordinator.Delete(r.Context(), userID, mux.Vars(r)["id"], confirmed); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveImage deletes a pin's image without touching its other fields.
func (h *LocationHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, apierrors.ErrUnauthorized)
		return
	}
	if err := h.coordinator.RemoveImage(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LocationHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, true)
}

func (h *LocationHandler) Downvote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, false)
}

func (h *LocationHandler) vote(w http.ResponseWriter, r *http.Request, up bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, apierrors.ErrUnauthorized)
		return
	}
	if err := h.coordinator.Vote(r.Context(), userID, mux.Vars(r)["id"], up); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stageUpload stages the request's image file, if one was sent. A validation
// rejection is returned as a warning message, not an error, so the owning
// mutation still runs without the image.
func (h *LocationHandler) stageUpload(r *http.Request) (warning string, err error) {
	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", apierrors.ErrInvalidInput
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", apierrors.ErrInvalidInput
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if err := h.coordinator.StageImage(header.Filename, contentType, data); err != nil {
		if apiErr, ok := err.(*apierrors.APIError); ok {
			return apiErr.Message, nil
		}
		return "", err
	}
	return "", nil
}
