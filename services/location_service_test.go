package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap-server/models"
	apierrors "pinmap-server/utils/errors"
)

type fakeLister struct {
	records []models.LocationRecord
	err     error
}

func (f *fakeLister) ListAll(context.Context) ([]models.LocationRecord, error) {
	return f.records, f.err
}

type fakeRenderer struct {
	mu     sync.Mutex
	clears int
	adds   [][]*models.MarkerHandle
}

func (f *fakeRenderer) Add(markers ...*models.MarkerHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, markers)
}

func (f *fakeRenderer) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.adds = nil
}

func (f *fakeRenderer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, chunk := range f.adds {
		n += len(chunk)
	}
	return n
}

func newTestStore(lister *fakeLister, fetcher *fakeUserFetcher, viewerID string) (*LocationStore, *fakeRenderer) {
	renderer := &fakeRenderer{}
	resolver := NewProfileResolver(fetcher)
	presenter := NewMarkerPresenter(MarkerActions{})
	store := NewLocationStore(lister, resolver, presenter, renderer, func() string { return viewerID })
	return store, renderer
}

func TestReloadSkipsUnparseableCoordinates(t *testing.T) {
	fetcher := newFakeUserFetcher()
	fetcher.users["good-owner"] = models.User{DisplayName: "Ada"}
	lister := &fakeLister{records: []models.LocationRecord{
		{ID: "a", OwnerID: "good-owner", Lat: "1.5", Lon: "2.5", Title: "ok"},
		{ID: "b", OwnerID: "bad-owner", Lat: "abc", Lon: "2.5", Title: "bad lat"},
		{ID: "c", OwnerID: "bad-owner", Lat: "1.5", Lon: "", Title: "bad lon"},
		{ID: "d", OwnerID: "bad-owner", Lat: "95", Lon: "0", Title: "out of range"},
	}}
	store, _ := newTestStore(lister, fetcher, "")

	require.NoError(t, store.Reload(context.Background()))

	markers := store.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "a", markers[0].Record.ID)

	// Owners referenced only by invalid records are never resolved.
	assert.Equal(t, 1, fetcher.callCount("good-owner"))
	assert.Equal(t, 0, fetcher.callCount("bad-owner"))
}

func TestReloadJoinsResolvedProfiles(t *testing.T) {
	fetcher := newFakeUserFetcher()
	fetcher.users["u1"] = models.User{DisplayName: "Ada", Email: "ada@example.com"}
	lister := &fakeLister{records: []models.LocationRecord{
		{ID: "a", OwnerID: "u1", Lat: "0", Lon: "0", Title: "first"},
		{ID: "b", OwnerID: "u1", Lat: "1", Lon: "1", Title: "second"},
		{ID: "c", OwnerID: "missing", Lat: "2", Lon: "2", Title: "third"},
	}}
	store, _ := newTestStore(lister, fetcher, "")

	require.NoError(t, store.Reload(context.Background()))

	markers := store.Markers()
	require.Len(t, markers, 3)
	assert.Equal(t, "Ada", markers[0].Owner.DisplayName)
	assert.Equal(t, "Ada", markers[1].Owner.DisplayName)
	assert.Equal(t, "Unknown User", markers[2].Owner.DisplayName)

	// One fetch per distinct owner, regardless of record count.
	assert.Equal(t, 1, fetcher.callCount("u1"))
	assert.Equal(t, 1, fetcher.callCount("missing"))
}

func TestReloadPreservesListOrder(t *testing.T) {
	lister := &fakeLister{}
	for i := 0; i < 7; i++ {
		lister.records = append(lister.records, models.LocationRecord{
			ID: fmt.Sprintf("loc-%d", i), OwnerID: "u1", Lat: "0", Lon: "0", Title: "t",
		})
	}
	store, _ := newTestStore(lister, newFakeUserFetcher(), "")

	require.NoError(t, store.Reload(context.Background()))

	markers := store.Markers()
	require.Len(t, markers, 7)
	for i, vm := range markers {
		assert.Equal(t, fmt.Sprintf("loc-%d", i), vm.Record.ID)
	}
}

func TestReloadRegistersMarkersInChunks(t *testing.T) {
	lister := &fakeLister{}
	for i := 0; i < 5; i++ {
		lister.records = append(lister.records, models.LocationRecord{
			ID: fmt.Sprintf("loc-%d", i), OwnerID: "u1", Lat: "0", Lon: "0", Title: "t",
		})
	}
	store, renderer := newTestStore(lister, newFakeUserFetcher(), "")
	store.chunkSize = 2

	require.NoError(t, store.Reload(context.Background()))

	assert.Equal(t, 1, renderer.clears)
	require.Len(t, renderer.adds, 3) // 2 + 2 + 1
	assert.Equal(t, 5, renderer.total())
}

func TestReloadReplacesPreviousMarkersWholesale(t *testing.T) {
	lister := &fakeLister{records: []models.LocationRecord{
		{ID: "old", OwnerID: "u1", Lat: "0", Lon: "0", Title: "old"},
	}}
	store, renderer := newTestStore(lister, newFakeUserFetcher(), "")
	require.NoError(t, store.Reload(context.Background()))

	lister.records = []models.LocationRecord{
		{ID: "new", OwnerID: "u1", Lat: "1", Lon: "1", Title: "new"},
	}
	require.NoError(t, store.Reload(context.Background()))

	markers := store.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "new", markers[0].Record.ID)
	assert.Equal(t, 2, renderer.clears)
	assert.Equal(t, 1, renderer.total())
}

func TestReloadFailureLeavesStateUntouched(t *testing.T) {
	lister := &fakeLister{records: []models.LocationRecord{
		{ID: "a", OwnerID: "u1", Lat: "0", Lon: "0", Title: "t"},
	}}
	store, renderer := newTestStore(lister, newFakeUserFetcher(), "")
	require.NoError(t, store.Reload(context.Background()))

	lister.err = errors.New("connection reset")
	err := store.Reload(context.Background())

	require.Error(t, err)
	apiErr, ok := err.(*apierrors.APIError)
	require.True(t, ok)
	assert.Equal(t, "BACKEND_READ", apiErr.Code)

	// Previously rendered markers stay up.
	assert.Len(t, store.Markers(), 1)
	assert.Equal(t, 1, renderer.clears)
	assert.Equal(t, 1, renderer.total())
}

func TestReloadRendersOwnerAffordancesForViewer(t *testing.T) {
	lister := &fakeLister{records: []models.LocationRecord{
		{ID: "mine", OwnerID: "viewer", Lat: "0", Lon: "0", Title: "mine"},
		{ID: "theirs", OwnerID: "someone-else", Lat: "1", Lon: "1", Title: "theirs"},
	}}
	store, _ := newTestStore(lister, newFakeUserFetcher(), "viewer")

	require.NoError(t, store.Reload(context.Background()))

	markers := store.Markers()
	require.Len(t, markers, 2)
	assert.Contains(t, markers[0].Marker.Popup, `class="edit"`)
	assert.NotContains(t, markers[1].Marker.Popup, `class="edit"`)
}
