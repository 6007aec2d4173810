package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"

	"pinmap-server/models"
	apierrors "pinmap-server/utils/errors"
)

// LocationWriter is the document-store surface the coordinator mutates
// through.
type LocationWriter interface {
	Get(ctx context.Context, id string) (models.LocationRecord, error)
	Create(ctx context.Context, record models.LocationRecord) (string, error)
	Update(ctx context.Context, id string, fields bson.M) error
	Delete(ctx context.Context, id string) error
	Vote(ctx context.Context, id, voterID string, up bool) error
}

// ImageStore stores and removes pin images. Delete is best-effort: removing
// an absent object must not fail.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Reloader refreshes the in-memory marker set after a successful mutation.
type Reloader interface {
	Reload(ctx context.Context) error
}

// PlacementState is the pin-creation state machine.
type PlacementState int

const (
	// StateIdle: no creation in progress.
	StateIdle PlacementState = iota
	// StatePlacing: map click armed, waiting for a pin drop.
	StatePlacing
	// StatePendingSubmit: pin dropped, form open.
	StatePendingSubmit
)

func (s PlacementState) String() string {
	switch s {
	case StatePlacing:
		return "placing"
	case StatePendingSubmit:
		return "pending_submit"
	default:
		return "idle"
	}
}

const maxImageBytes = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// StagedImage is a validated image held until its owning mutation runs.
type StagedImage struct {
	Name        string
	ContentType string
	Data        []byte
}

// PendingPin is the coordinates of the single not-yet-submitted pin.
type PendingPin struct {
	Lat float64
	Lon float64
}

type CreateInput struct {
	Title   string
	Notes   string
	Address string
}

type UpdateInput struct {
	Title   string
	Notes   string
	Address string
}

// MutationResult reports a completed mutation. Warning is set on partial
// success: the record mutation applied but the image step failed.
type MutationResult struct {
	ID      string
	Warning *apierrors.APIError
}

// MutationCoordinator sequences create/update/delete of location records and
// their image attachments, reloading the location store after each success.
type MutationCoordinator struct {
	docs   LocationWriter
	images ImageStore
	store  Reloader
	online func() bool

	mu         sync.Mutex
	state      PlacementState
	pending    *PendingPin
	staged     *StagedImage
	editTarget string
}

func NewMutationCoordinator(docs LocationWriter, images ImageStore, store Reloader, online func() bool) *MutationCoordinator {
	return &MutationCoordinator{
		docs:   docs,
		images: images,
		store:  store,
		online: online,
	}
}

// State returns the current placement state.
func (c *MutationCoordinator) State() PlacementState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingPin returns the dropped-but-unsubmitted pin, if any.
func (c *MutationCoordinator) PendingPin() *PendingPin {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	pin := *c.pending
	return &pin
}

// TogglePlacing arms pin placement, or, when a placement is already in
// progress, cancels it and clears the temporary pin and staged image.
func (c *MutationCoordinator) TogglePlacing() PlacementState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		c.resetLocked()
		return c.state
	}
	c.state = StatePlacing
	return c.state
}

// DropPin records the clicked coordinates as the pending pin. Only one
// pending pin may exist at a time.
func (c *MutationCoordinator) DropPin(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return apierrors.Validation("Coordinates are out of range")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlacing {
		return apierrors.Validation("Enable pin placement before dropping a pin")
	}
	c.pending = &PendingPin{Lat: lat, Lon: lon}
	c.state = StatePendingSubmit
	return nil
}

// Cancel abandons any in-progress placement or edit.
func (c *MutationCoordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *MutationCoordinator) resetLocked() {
	c.state = StateIdle
	c.pending = nil
	c.staged = nil
	c.editTarget = ""
}

// StageImage validates and stages an image for the next create or update. A
// rejected file is not staged and clears any previously staged one.
func (c *MutationCoordinator) StageImage(name, contentType string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !allowedImageTypes[contentType] {
		c.staged = nil
		return apierrors.Validation("Unsupported image type. Use JPEG, PNG, GIF, or WebP")
	}
	if len(data) > maxImageBytes {
		c.staged = nil
		return apierrors.Validation("Image is too large (max 5 MB)")
	}
	c.staged = &StagedImage{Name: name, ContentType: contentType, Data: data}
	return nil
}

// BeginEdit marks id as the active edit target.
func (c *MutationCoordinator) BeginEdit(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editTarget = id
}

// EditTarget returns the id currently being edited, if any.
func (c *MutationCoordinator) EditTarget() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editTarget
}

// CancelEdit abandons the active edit and discards any staged image.
func (c *MutationCoordinator) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editTarget = ""
	c.staged = nil
}

// Create persists a new location at the pending pin. An upload failure for a
// staged image leaves the record in place and is reported as a warning, not
// an error. Creation is refused while offline.
func (c *MutationCoordinator) Create(ctx context.Context, ownerID string, in CreateInput) (MutationResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return MutationResult{}, apierrors.Validation("Title is required")
	}
	if c.online != nil && !c.online() {
		return MutationResult{}, apierrors.ErrOffline
	}

	c.mu.Lock()
	if c.state != StatePendingSubmit || c.pending == nil {
		c.mu.Unlock()
		return MutationResult{}, apierrors.Validation("Drop a pin on the map first")
	}
	pin := *c.pending
	staged := c.staged
	c.mu.Unlock()

	record := models.LocationRecord{
		OwnerID: ownerID,
		Lat:     strconv.FormatFloat(pin.Lat, 'f', -1, 64),
		Lon:     strconv.FormatFloat(pin.Lon, 'f', -1, 64),
		Title:   title,
		Notes:   in.Notes,
		Address: in.Address,
	}
	id, err := c.docs.Create(ctx, record)
	if err != nil {
		log.Error().Err(err).Msg("failed to create location")
		return MutationResult{}, apierrors.BackendWrite(err)
	}

	result := MutationResult{ID: id}
	if staged != nil {
		url, err := c.images.Put(ctx, imageKey(ownerID, id), staged.Data, staged.ContentType)
		if err != nil {
			log.Error().Err(err).Str("location_id", id).Msg("image upload failed, pin saved without image")
			result.Warning = apierrors.Storage(err, "Your pin was saved, but the image upload failed")
		} else if err := c.docs.Update(ctx, id, bson.M{"image_url": url}); err != nil {
			log.Error().Err(err).Str("location_id", id).Msg("failed to attach image url")
			result.Warning = apierrors.Storage(err, "Your pin was saved, but the image could not be attached")
		}
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	c.reload(ctx)
	return result, nil
}

// Update rewrites the active edit target's fields. A staged replacement image
// causes the old stored image to be deleted before the new one is uploaded;
// a failed delete is tolerated and the upload proceeds.
func (c *MutationCoordinator) Update(ctx context.Context, userID string, in UpdateInput) (MutationResult, error) {
	// An update attempt consumes the edit target; a rejected one must not
	// leave a stale target or staged image behind for the next request.
	defer c.CancelEdit()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return MutationResult{}, apierrors.Validation("Title is required")
	}

	c.mu.Lock()
	target := c.editTarget
	staged := c.staged
	c.mu.Unlock()
	if target == "" {
		return MutationResult{}, apierrors.Validation("No pin is being edited")
	}

	current, err := c.docs.Get(ctx, target)
	if err != nil {
		return MutationResult{}, apierrors.BackendRead(err)
	}
	if current.OwnerID != userID {
		return MutationResult{}, apierrors.ErrUnauthorized
	}

	fields := bson.M{
		"title":   title,
		"notes":   in.Notes,
		"address": in.Address,
	}

	result := MutationResult{ID: target}
	if staged != nil {
		if current.ImageURL != "" {
			if err := c.images.Delete(ctx, imageKey(current.OwnerID, target)); err != nil {
				log.Warn().Err(err).Str("location_id", target).Msg("failed to delete replaced image, continuing")
			}
		}
		url, err := c.images.Put(ctx, imageKey(current.OwnerID, target), staged.Data, staged.ContentType)
		if err != nil {
			log.Error().Err(err).Str("location_id", target).Msg("replacement image upload failed")
			result.Warning = apierrors.Storage(err, "Your changes were saved, but the image upload failed")
		} else {
			fields["image_url"] = url
		}
	}

	if err := c.docs.Update(ctx, target, fields); err != nil {
		log.Error().Err(err).Str("location_id", target).Msg("failed to update location")
		return MutationResult{}, apierrors.BackendWrite(err)
	}

	c.reload(ctx)
	return result, nil
}

// Delete removes a location after explicit confirmation. The stored image is
// deleted first, best-effort: its failure is logged and the record deletion
// still proceeds.
func (c *MutationCoordinator) Delete(ctx context.Context, userID, id string, confirmed bool) error {
	if !confirmed {
		return apierrors.Validation("Deletion requires confirmation")
	}

	current, err := c.docs.Get(ctx, id)
	if err != nil {
		return apierrors.BackendRead(err)
	}
	if current.OwnerID != userID {
		return apierrors.ErrUnauthorized
	}

	if current.ImageURL != "" {
		if err := c.images.Delete(ctx, imageKey(current.OwnerID, id)); err != nil {
			log.Warn().Err(err).Str("location_id", id).Msg("failed to delete image, deleting record anyway")
		}
	}
	if err := c.docs.Delete(ctx, id); err != nil {
		log.Error().Err(err).Str("location_id", id).Msg("failed to delete location")
		return apierrors.BackendWrite(err)
	}

	c.mu.Lock()
	if c.editTarget == id {
		c.editTarget = ""
		c.staged = nil
	}
	c.mu.Unlock()

	c.reload(ctx)
	return nil
}

// RemoveImage deletes a location's stored image and clears its image URL,
// leaving every other field alone.
func (c *MutationCoordinator) RemoveImage(ctx context.Context, userID, id string) error {
	current, err := c.docs.Get(ctx, id)
	if err != nil {
		return apierrors.BackendRead(err)
	}
	if current.OwnerID != userID {
		return apierrors.ErrUnauthorized
	}
	if current.ImageURL == "" {
		return nil
	}

	if err := c.images.Delete(ctx, imageKey(current.OwnerID, id)); err != nil {
		log.Warn().Err(err).Str("location_id", id).Msg("failed to delete image, clearing url anyway")
	}
	if err := c.docs.Update(ctx, id, bson.M{"image_url": nil}); err != nil {
		return apierrors.BackendWrite(err)
	}

	c.reload(ctx)
	return nil
}

// Vote records an up or down vote for voterID and refreshes the markers.
func (c *MutationCoordinator) Vote(ctx context.Context, voterID, id string, up bool) error {
	if voterID == "" {
		return apierrors.ErrUnauthorized
	}
	if err := c.docs.Vote(ctx, id, voterID, up); err != nil {
		log.Error().Err(err).Str("location_id", id).Msg("failed to record vote")
		return apierrors.BackendWrite(err)
	}
	c.reload(ctx)
	return nil
}

func (c *MutationCoordinator) reload(ctx context.Context) {
	if err := c.store.Reload(ctx); err != nil {
		// The mutation itself succeeded; stale markers heal on the next
		// reload.
		log.Warn().Err(err).Msg("post-mutation reload failed")
	}
}

func imageKey(ownerID, locationID string) string {
	return fmt.Sprintf("%s/%s", ownerID, locationID)
}
