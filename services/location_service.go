package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pinmap-server/models"
	apierrors "pinmap-server/utils/errors"
)

// LocationLister loads every persisted location record, newest first.
type LocationLister interface {
	ListAll(ctx context.Context) ([]models.LocationRecord, error)
}

const defaultChunkSize = 50

// LocationStore owns the authoritative in-memory list of marker view-models.
// Every reload rebuilds the list wholesale; there is no incremental patching.
type LocationStore struct {
	lister    LocationLister
	resolver  *ProfileResolver
	presenter *MarkerPresenter
	renderer  MarkerRenderer
	// viewerID supplies the authenticated user for owner-only affordances.
	viewerID  func() string
	chunkSize int

	mu      sync.RWMutex
	markers []*models.MarkerViewModel
}

func NewLocationStore(lister LocationLister, resolver *ProfileResolver, presenter *MarkerPresenter, renderer MarkerRenderer, viewerID func() string) *LocationStore {
	return &LocationStore{
		lister:    lister,
		resolver:  resolver,
		presenter: presenter,
		renderer:  renderer,
		viewerID:  viewerID,
		chunkSize: defaultChunkSize,
	}
}

// Reload fetches all location records and rebuilds the marker set. Records
// with unparseable coordinates are dropped. Distinct owners are resolved
// concurrently so the join costs one slow profile fetch, not their sum. On a
// fetch failure the previous markers are left untouched.
func (s *LocationStore) Reload(ctx context.Context) error {
	records, err := s.lister.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list locations")
		return apierrors.BackendRead(err)
	}

	// First pass: keep parseable records, collect distinct owners.
	valid := make([]models.LocationRecord, 0, len(records))
	seen := make(map[string]bool)
	var owners []string
	for _, rec := range records {
		if _, _, ok := rec.Coordinates(); !ok {
			log.Debug().Str("location_id", rec.ID).Str("lat", rec.Lat).Str("lon", rec.Lon).
				Msg("skipping location with invalid coordinates")
			continue
		}
		valid = append(valid, rec)
		if rec.OwnerID != "" && !seen[rec.OwnerID] {
			seen[rec.OwnerID] = true
			owners = append(owners, rec.OwnerID)
		}
	}

	// Fan-out: resolve all distinct owners together, join before building.
	profiles := make(map[string]models.Profile, len(owners))
	var pm sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ownerID := range owners {
		g.Go(func() error {
			profile := s.resolver.Resolve(gctx, ownerID)
			pm.Lock()
			profiles[ownerID] = profile
			pm.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Second pass: join profiles and build markers.
	viewer := s.viewerID()
	next := make([]*models.MarkerViewModel, 0, len(valid))
	for _, rec := range valid {
		owner, ok := profiles[rec.OwnerID]
		if !ok {
			owner = models.DefaultProfile()
		}
		vm := &models.MarkerViewModel{Record: rec, Owner: owner}
		vm.Marker = s.presenter.Present(vm, viewer)
		next = append(next, vm)
	}

	// Replace the rendered layer: clear, then register in chunks so a large
	// result set does not land as one giant batch. All chunks complete before
	// the reload is done.
	s.renderer.Clear()
	for start := 0; start < len(next); start += s.chunkSize {
		end := min(start+s.chunkSize, len(next))
		chunk := make([]*models.MarkerHandle, 0, end-start)
		for _, vm := range next[start:end] {
			chunk = append(chunk, vm.Marker)
		}
		s.renderer.Add(chunk...)
	}

	s.mu.Lock()
	s.markers = next
	s.mu.Unlock()

	log.Info().Int("total", len(records)).Int("rendered", len(next)).Int("owners", len(owners)).
		Msg("reloaded location markers")
	return nil
}

// Markers returns a read-only snapshot of the current view-models.
func (s *LocationStore) Markers() []*models.MarkerViewModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.MarkerViewModel, len(s.markers))
	copy(out, s.markers)
	return out
}
