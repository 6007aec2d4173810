package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"pinmap-server/models"
)

// UserFetcher retrieves a user record by its public identifier.
type UserFetcher interface {
	FetchUser(ctx context.Context, publicID string) (models.User, error)
}

type profileEntry struct {
	once    sync.Once
	profile models.Profile
}

// ProfileResolver resolves user identifiers to display profiles, memoizing
// results for its own lifetime. Entries are never invalidated; a failed fetch
// caches the default profile for the rest of the session as well. Concurrent
// lookups for the same key share a single backend fetch.
type ProfileResolver struct {
	fetcher UserFetcher

	mu    sync.Mutex
	cache map[string]*profileEntry
}

func NewProfileResolver(fetcher UserFetcher) *ProfileResolver {
	return &ProfileResolver{
		fetcher: fetcher,
		cache:   make(map[string]*profileEntry),
	}
}

// Resolve returns the display profile for userID. An empty id yields the
// default profile without touching the cache or the backend.
func (r *ProfileResolver) Resolve(ctx context.Context, userID string) models.Profile {
	if userID == "" {
		return models.DefaultProfile()
	}

	r.mu.Lock()
	entry, ok := r.cache[userID]
	if !ok {
		entry = &profileEntry{}
		r.cache[userID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		user, err := r.fetcher.FetchUser(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("profile fetch failed, caching default profile")
			entry.profile = models.DefaultProfile()
			return
		}
		profile := models.Profile{DisplayName: user.DisplayName, Email: user.Email}
		if profile.DisplayName == "" {
			profile.DisplayName = user.Email
		}
		if profile.DisplayName == "" {
			profile.DisplayName = models.DefaultProfile().DisplayName
		}
		entry.profile = profile
	})

	return entry.profile
}
