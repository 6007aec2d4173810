package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"pinmap-server/middleware"
	"pinmap-server/services"
	apierrors "pinmap-server/utils/errors"
)

type AuthHandler struct {
	userService *services.UserService
	sessions    *services.SessionService
}

func NewAuthHandler(userService *services.UserService, sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{userService: userService, sessions: sessions}
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}
	if input.Username == "" || input.Password == "" {
		middleware.WriteError(w, apierrors.Validation("Username and password are required"))
		return
	}

	userID, err := h.userService.Register(r.Context(), input.Username, input.DisplayName, input.Email, input.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"userID": userID})
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, apierrors.ErrInvalidInput)
		return
	}

	token, session, err := h.userService.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.sessions.Set(session)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token, "userID": session.UserID})
}

func (h *AuthHandler) LogoutUser(w http.ResponseWriter, r *http.Request) {
	h.sessions.Set(nil)
	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError maps provider auth codes to their fixed messages; a
// suppressed code yields no message at all.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		apiErr := authErr.APIError()
		if apiErr == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		middleware.WriteError(w, apiErr)
		return
	}
	middleware.WriteError(w, err)
}
