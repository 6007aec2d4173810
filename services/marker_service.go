package services

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"pinmap-server/models"
)

// MarkerActions are the callbacks wired to a marker's owner-only affordances.
// They are injected at construction instead of being looked up through any
// shared global state.
type MarkerActions struct {
	OnEdit   func(locationID string)
	OnDelete func(locationID string)
}

// MarkerPresenter turns a view-model into a renderable marker with popup
// markup.
type MarkerPresenter struct {
	actions MarkerActions
}

func NewMarkerPresenter(actions MarkerActions) *MarkerPresenter {
	return &MarkerPresenter{actions: actions}
}

// Present builds the marker handle for vm. Edit/delete affordances are
// rendered only when viewerID matches the record's owner; display-only, the
// write path still checks ownership.
func (p *MarkerPresenter) Present(vm *models.MarkerViewModel, viewerID string) *models.MarkerHandle {
	lat, lon, _ := vm.Record.Coordinates()
	return &models.MarkerHandle{
		LocationID: vm.Record.ID,
		Lat:        lat,
		Lon:        lon,
		Popup:      p.popupMarkup(vm, viewerID),
	}
}

// Edit forwards an edit affordance activation to the injected callback.
func (p *MarkerPresenter) Edit(locationID string) {
	if p.actions.OnEdit != nil {
		p.actions.OnEdit(locationID)
	}
}

// Delete forwards a delete affordance activation to the injected callback.
func (p *MarkerPresenter) Delete(locationID string) {
	if p.actions.OnDelete != nil {
		p.actions.OnDelete(locationID)
	}
}

func (p *MarkerPresenter) popupMarkup(vm *models.MarkerViewModel, viewerID string) string {
	rec := &vm.Record
	var b strings.Builder

	b.WriteString(`<div class="pin-popup">`)
	fmt.Fprintf(&b, `<h3>%s</h3>`, html.EscapeString(rec.Title))

	label, color := voteBadge(len(rec.Upvotes), len(rec.Downvotes))
	fmt.Fprintf(&b, `<span class="score score-%s">%s</span> <span class="votes">(↑%d ↓%d)</span>`,
		color, label, len(rec.Upvotes), len(rec.Downvotes))

	if rec.Address != "" {
		fmt.Fprintf(&b, `<p class="address">%s</p>`, html.EscapeString(rec.Address))
	}
	if vm.Owner.DisplayName != "" {
		fmt.Fprintf(&b, `<p class="owner">Added by %s</p>`, html.EscapeString(vm.Owner.DisplayName))
	}
	if rec.Notes != "" {
		fmt.Fprintf(&b, `<p class="notes">%s</p>`, html.EscapeString(rec.Notes))
	}
	fmt.Fprintf(&b, `<a class="details" href="/locations/%s">Details</a>`, rec.ID)

	if viewerID != "" && viewerID == rec.OwnerID {
		fmt.Fprintf(&b, `<button class="edit" data-id="%s">Edit</button>`, rec.ID)
		fmt.Fprintf(&b, `<button class="delete" data-id="%s">Delete</button>`, rec.ID)
	}

	b.WriteString(`</div>`)
	return b.String()
}

// voteBadge maps a vote tally to its display label and color: positive scores
// are green with a leading "+", negative red, zero neutral gray.
func voteBadge(up, down int) (label, color string) {
	score := up - down
	switch {
	case score > 0:
		return "+" + strconv.Itoa(score), "green"
	case score < 0:
		return strconv.Itoa(score), "red"
	default:
		return "0", "gray"
	}
}

// MarkerRenderer is the rendering-layer boundary: a marker layer that points
// can be added to and cleared wholesale. Clustering and drawing are the
// renderer's business.
type MarkerRenderer interface {
	Add(markers ...*models.MarkerHandle)
	Clear()
}

// MapLayer is the server-side marker layer the single-page client polls. It
// stands in for the rendering library's layer group.
type MapLayer struct {
	mu      sync.RWMutex
	markers []*models.MarkerHandle
}

func NewMapLayer() *MapLayer {
	return &MapLayer{}
}

func (l *MapLayer) Add(markers ...*models.MarkerHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = append(l.markers, markers...)
}

func (l *MapLayer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = nil
}

// Markers returns a snapshot of the layer contents.
func (l *MapLayer) Markers() []*models.MarkerHandle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.MarkerHandle, len(l.markers))
	copy(out, l.markers)
	return out
}
