package services

import (
	"fmt"
	"net/http"
	"sync"

	apierrors "pinmap-server/utils/errors"
)

// Session is an authenticated user's session payload.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SessionService tracks the current session and notifies subscribers when it
// changes. Dispatch is serialized: handlers observe at most one in-flight
// session state at a time.
type SessionService struct {
	// dispatchMu serializes Set calls end to end; mu only guards the fields,
	// so handlers may call back into Current without deadlocking.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	current    *Session
	handlers   []func(*Session)
}

func NewSessionService() *SessionService {
	return &SessionService{}
}

// OnSessionChange registers a handler invoked with the new session (nil on
// sign-out).
func (s *SessionService) OnSessionChange(handler func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Set replaces the current session and notifies subscribers. Handlers run
// outside the field mutex and may read the service.
func (s *SessionService) Set(session *Session) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	s.current = session
	handlers := s.handlers
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(session)
	}
}

// Current returns the active session, or nil when signed out.
func (s *SessionService) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentUserID returns the signed-in user's id, or "" when signed out.
func (s *SessionService) CurrentUserID() string {
	if session := s.Current(); session != nil {
		return session.UserID
	}
	return ""
}

// Provider-specific auth failure codes, mapped to a fixed set of messages.
const (
	AuthCodeInvalidCredentials = "invalid-credentials"
	AuthCodeUserNotFound       = "user-not-found"
	AuthCodeEmailInUse         = "email-already-in-use"
	AuthCodeNetwork            = "network-request-failed"
	AuthCodeTooManyRequests    = "too-many-requests"
	AuthCodePopupClosed        = "popup-closed-by-user"
)

var authMessages = map[string]string{
	AuthCodeInvalidCredentials: "Invalid username or password",
	AuthCodeUserNotFound:       "No account exists for that username",
	AuthCodeEmailInUse:         "An account with that email already exists",
	AuthCodeNetwork:            "Network error. Check your connection and try again",
	AuthCodeTooManyRequests:    "Too many attempts. Please wait and try again",
	// The user closed the sign-in popup themselves; showing an error for
	// that is just noise.
	AuthCodePopupClosed: "",
}

// AuthError carries a provider auth failure code.
type AuthError struct {
	Code string
	Err  error
}

func NewAuthError(code string, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth/%s", e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// MapAuthError translates a provider code into its user-facing message. show
// is false for deliberately suppressed codes.
func MapAuthError(code string) (message string, show bool) {
	msg, ok := authMessages[code]
	if !ok {
		return "Sign-in failed. Please try again", true
	}
	if msg == "" {
		return "", false
	}
	return msg, true
}

// APIError converts an auth failure into the response-layer error type, or
// nil when the failure is suppressed.
func (e *AuthError) APIError() *apierrors.APIError {
	message, show := MapAuthError(e.Code)
	if !show {
		return nil
	}
	return apierrors.NewAPIError("AUTH_ERROR", message, http.StatusUnauthorized, e.Code)
}
