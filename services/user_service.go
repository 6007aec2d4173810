package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"pinmap-server/models"
	apierrors "pinmap-server/utils/errors"
)

const userCacheTTL = 24 * time.Hour

// UserStore is the document-store surface for user records.
type UserStore interface {
	FindUserByPublicID(ctx context.Context, publicID string) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	InsertUser(ctx context.Context, user models.User) error
}

// userCache is the subset of the Redis client used for the read-through user
// cache.
type userCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// UserService handles registration, login, and user lookups, fronting the
// document store with a Redis read-through cache.
type UserService struct {
	store     UserStore
	cache     userCache
	jwtSecret string
}

func NewUserService(store UserStore, cache userCache, jwtSecret string) *UserService {
	return &UserService{store: store, cache: cache, jwtSecret: jwtSecret}
}

// FetchUser retrieves a user by public id, Redis first, then the document
// store, caching the result.
func (s *UserService) FetchUser(ctx context.Context, publicID string) (models.User, error) {
	var user models.User

	userJSON, err := s.cache.Get(ctx, "user:"+publicID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			log.Warn().Err(err).Str("user_id", publicID).Msg("failed to unmarshal cached user")
		} else {
			return user, nil
		}
	}

	user, err = s.store.FindUserByPublicID(ctx, publicID)
	if err != nil {
		return models.User{}, err
	}

	if data, err := json.Marshal(user); err == nil {
		s.cache.Set(ctx, "user:"+publicID, data, userCacheTTL)
	}
	return user, nil
}

// Register creates a new account and returns its public id.
func (s *UserService) Register(ctx context.Context, username, displayName, email, password string) (string, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apierrors.Wrap(err, "HASH_ERROR", "failed to hash password", http.StatusInternalServerError)
	}

	user := models.User{
		ID:           uuid.New().String(),
		PublicID:     uuid.New().String(),
		Username:     username,
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(passwordHash),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return "", NewAuthError(AuthCodeEmailInUse, err)
	}

	if data, err := json.Marshal(user); err == nil {
		s.cache.Set(ctx, "user:"+user.PublicID, data, userCacheTTL)
	}
	return user.PublicID, nil
}

// Login authenticates a user and returns a signed JWT plus the session it
// establishes.
func (s *UserService) Login(ctx context.Context, username, password string) (string, *Session, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return "", nil, NewAuthError(AuthCodeUserNotFound, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, NewAuthError(AuthCodeInvalidCredentials, err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":   user.PublicID,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", nil, apierrors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}

	if data, err := json.Marshal(user); err == nil {
		s.cache.Set(ctx, "user:"+user.PublicID, data, userCacheTTL)
	}

	return tokenString, &Session{UserID: user.PublicID, Email: user.Email}, nil
}
