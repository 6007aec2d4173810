package services

import (
	"strings"
	"sync"
	"time"

	"pinmap-server/models"
	"pinmap-server/utils/debounce"
)

// SearchDelay is the quiet period before a typed query takes effect.
const SearchDelay = 300 * time.Millisecond

// SearchFilter maintains the visible subset of the location store's markers
// for the current free-text query. UpdateQuery is the debounced UI-facing
// trigger; SetQuery applies a query immediately.
type SearchFilter struct {
	store     *LocationStore
	debouncer *debounce.Debouncer

	mu    sync.RWMutex
	query string
}

func NewSearchFilter(store *LocationStore) *SearchFilter {
	f := &SearchFilter{store: store}
	f.debouncer = debounce.New(SearchDelay, f.SetQuery)
	return f
}

// UpdateQuery coalesces rapid successive queries, applying only the last one
// after the quiet period. The final filter state always matches the final
// query.
func (f *SearchFilter) UpdateQuery(text string) {
	f.debouncer.Trigger(text)
}

// SetQuery applies text as the current query. The stored form is trimmed and
// lowercased, so filtering is case-insensitive and idempotent.
func (f *SearchFilter) SetQuery(text string) {
	f.mu.Lock()
	f.query = strings.ToLower(strings.TrimSpace(text))
	f.mu.Unlock()
}

// Query returns the currently applied (normalized) query.
func (f *SearchFilter) Query() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.query
}

// Visible returns the markers matching the current query. An empty query
// matches everything; otherwise the query must be a substring of the
// lowercased title, notes, address, or owner display name.
func (f *SearchFilter) Visible() []*models.MarkerViewModel {
	query := f.Query()
	all := f.store.Markers()
	if query == "" {
		return all
	}
	visible := make([]*models.MarkerViewModel, 0, len(all))
	for _, vm := range all {
		if matchesQuery(vm, query) {
			visible = append(visible, vm)
		}
	}
	return visible
}

func matchesQuery(vm *models.MarkerViewModel, query string) bool {
	for _, field := range []string{vm.Record.Title, vm.Record.Notes, vm.Record.Address, vm.Owner.DisplayName} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
