package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"pinmap-server/models"
	apierrors "pinmap-server/utils/errors"
)

// opLog records backend calls across fakes so ordering invariants can be
// asserted.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *opLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
}

type fakeDocs struct {
	log     *opLog
	records map[string]models.LocationRecord

	createErr error
	updateErr error
	deleteErr error
}

func newFakeDocs(log *opLog) *fakeDocs {
	return &fakeDocs{log: log, records: make(map[string]models.LocationRecord)}
}

func (f *fakeDocs) Get(_ context.Context, id string) (models.LocationRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return models.LocationRecord{}, errors.New("no documents in result")
	}
	return rec, nil
}

func (f *fakeDocs) Create(_ context.Context, record models.LocationRecord) (string, error) {
	f.log.add("doc.create")
	if f.createErr != nil {
		return "", f.createErr
	}
	record.ID = "new-id"
	f.records[record.ID] = record
	return record.ID, nil
}

func (f *fakeDocs) Update(_ context.Context, id string, fields bson.M) error {
	f.log.add("doc.update:" + id)
	if f.updateErr != nil {
		return f.updateErr
	}
	rec := f.records[id]
	if title, ok := fields["title"].(string); ok {
		rec.Title = title
	}
	if url, ok := fields["image_url"]; ok {
		if s, ok := url.(string); ok {
			rec.ImageURL = s
		} else {
			rec.ImageURL = ""
		}
	}
	f.records[id] = rec
	return nil
}

func (f *fakeDocs) Delete(_ context.Context, id string) error {
	f.log.add("doc.delete:" + id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.records, id)
	return nil
}

func (f *fakeDocs) Vote(_ context.Context, id, voterID string, up bool) error {
	if up {
		f.log.add("doc.upvote:" + id)
	} else {
		f.log.add("doc.downvote:" + id)
	}
	return nil
}

type fakeImages struct {
	log       *opLog
	putErr    error
	deleteErr error
}

func (f *fakeImages) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.log.add("img.put:" + key)
	if f.putErr != nil {
		return "", f.putErr
	}
	return "https://images.test/" + key, nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.log.add("img.delete:" + key)
	return f.deleteErr
}

type fakeReloader struct {
	log   *opLog
	count int
}

func (f *fakeReloader) Reload(context.Context) error {
	f.log.add("reload")
	f.count++
	return nil
}

type mutationFixture struct {
	log         *opLog
	docs        *fakeDocs
	images      *fakeImages
	reloader    *fakeReloader
	coordinator *MutationCoordinator
	online      bool
}

func newMutationFixture() *mutationFixture {
	f := &mutationFixture{log: &opLog{}, online: true}
	f.docs = newFakeDocs(f.log)
	f.images = &fakeImages{log: f.log}
	f.reloader = &fakeReloader{log: f.log}
	f.coordinator = NewMutationCoordinator(f.docs, f.images, f.reloader, func() bool { return f.online })
	return f
}

func (f *mutationFixture) dropPin(t *testing.T) {
	t.Helper()
	require.Equal(t, StatePlacing, f.coordinator.TogglePlacing())
	require.NoError(t, f.coordinator.DropPin(10.5, -20.25))
	require.Equal(t, StatePendingSubmit, f.coordinator.State())
}

func validImage(size int) []byte {
	return make([]byte, size)
}

func TestCreateEmptyTitleMakesNoBackendCall(t *testing.T) {
	f := newMutationFixture()
	f.dropPin(t)

	_, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "   "})

	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", err.(*apierrors.APIError).Code)
	assert.Empty(t, f.log.list())
	assert.Equal(t, 0, f.reloader.count)
}

func TestCreateWithoutPendingPinFails(t *testing.T) {
	f := newMutationFixture()

	_, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})

	require.Error(t, err)
	assert.Empty(t, f.log.list())
}

func TestCreatePersistsRecordAndReloads(t *testing.T) {
	f := newMutationFixture()
	f.dropPin(t)

	result, err := f.coordinator.Create(context.Background(), "u1", CreateInput{
		Title: " Viewpoint ", Notes: "sunset", Address: "Hill Rd",
	})

	require.NoError(t, err)
	assert.Equal(t, "new-id", result.ID)
	assert.Nil(t, result.Warning)
	assert.Equal(t, []string{"doc.create", "reload"}, f.log.list())

	rec := f.docs.records["new-id"]
	assert.Equal(t, "u1", rec.OwnerID)
	assert.Equal(t, "Viewpoint", rec.Title)
	assert.Equal(t, "10.5", rec.Lat)
	assert.Equal(t, "-20.25", rec.Lon)

	assert.Equal(t, StateIdle, f.coordinator.State())
	assert.Nil(t, f.coordinator.PendingPin())
}

func TestCreateAttachesStagedImage(t *testing.T) {
	f := newMutationFixture()
	f.dropPin(t)
	require.NoError(t, f.coordinator.StageImage("pic.jpg", "image/jpeg", validImage(1024)))

	result, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})

	require.NoError(t, err)
	assert.Nil(t, result.Warning)
	assert.Equal(t, []string{"doc.create", "img.put:u1/new-id", "doc.update:new-id", "reload"}, f.log.list())
	assert.Equal(t, "https://images.test/u1/new-id", f.docs.records["new-id"].ImageURL)
}

func TestCreateImageUploadFailureIsPartialSuccess(t *testing.T) {
	f := newMutationFixture()
	f.images.putErr = errors.New("storage down")
	f.dropPin(t)
	require.NoError(t, f.coordinator.StageImage("pic.png", "image/png", validImage(64)))

	result, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})

	require.NoError(t, err)
	require.NotNil(t, result.Warning)
	assert.Equal(t, "STORAGE_ERROR", result.Warning.Code)
	// The record persists and the reload still runs.
	assert.Contains(t, f.docs.records, "new-id")
	assert.Equal(t, 1, f.reloader.count)
}

func TestCreateRefusedWhileOffline(t *testing.T) {
	f := newMutationFixture()
	f.dropPin(t)
	f.online = false

	_, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})

	require.Error(t, err)
	assert.Equal(t, "OFFLINE", err.(*apierrors.APIError).Code)
	assert.Empty(t, f.log.list())
}

func TestStageImageRejectsBadTypeAndSize(t *testing.T) {
	f := newMutationFixture()

	err := f.coordinator.StageImage("doc.pdf", "application/pdf", validImage(10))
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", err.(*apierrors.APIError).Code)

	err = f.coordinator.StageImage("huge.jpg", "image/jpeg", validImage(10<<20))
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", err.(*apierrors.APIError).Code)

	// A rejection clears any previously staged image.
	require.NoError(t, f.coordinator.StageImage("ok.webp", "image/webp", validImage(10)))
	require.Error(t, f.coordinator.StageImage("huge.gif", "image/gif", validImage(10<<20)))

	f.dropPin(t)
	_, err = f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})
	require.NoError(t, err)
	// No storage write was attempted.
	assert.Equal(t, []string{"doc.create", "reload"}, f.log.list())
}

func TestStageImageAcceptsExactCeiling(t *testing.T) {
	f := newMutationFixture()
	assert.NoError(t, f.coordinator.StageImage("big.jpg", "image/jpeg", validImage(5<<20)))
}

func TestUpdateReplacingImageDeletesOldFirst(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{
		ID: "loc-1", OwnerID: "u1", Title: "old", ImageURL: "https://images.test/u1/loc-1",
	}
	f.coordinator.BeginEdit("loc-1")
	require.NoError(t, f.coordinator.StageImage("new.jpg", "image/jpeg", validImage(512)))

	result, err := f.coordinator.Update(context.Background(), "u1", UpdateInput{Title: "new title"})

	require.NoError(t, err)
	assert.Nil(t, result.Warning)
	assert.Equal(t, []string{"img.delete:u1/loc-1", "img.put:u1/loc-1", "doc.update:loc-1", "reload"}, f.log.list())
	assert.Equal(t, "new title", f.docs.records["loc-1"].Title)
}

func TestUpdateOldImageDeleteFailureStillUploads(t *testing.T) {
	f := newMutationFixture()
	f.images.deleteErr = errors.New("object locked")
	f.docs.records["loc-1"] = models.LocationRecord{
		ID: "loc-1", OwnerID: "u1", Title: "old", ImageURL: "https://images.test/u1/loc-1",
	}
	f.coordinator.BeginEdit("loc-1")
	require.NoError(t, f.coordinator.StageImage("new.jpg", "image/jpeg", validImage(512)))

	_, err := f.coordinator.Update(context.Background(), "u1", UpdateInput{Title: "new title"})

	require.NoError(t, err)
	ops := f.log.list()
	assert.Equal(t, "img.delete:u1/loc-1", ops[0])
	assert.Contains(t, ops, "img.put:u1/loc-1")
}

func TestUpdateWithoutEditTargetFails(t *testing.T) {
	f := newMutationFixture()

	_, err := f.coordinator.Update(context.Background(), "u1", UpdateInput{Title: "t"})

	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", err.(*apierrors.APIError).Code)
}

func TestUpdateByNonOwnerIsRejected(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{ID: "loc-1", OwnerID: "u1", Title: "old"}
	f.coordinator.BeginEdit("loc-1")

	_, err := f.coordinator.Update(context.Background(), "intruder", UpdateInput{Title: "t"})

	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", err.(*apierrors.APIError).Code)
}

func TestFailedUpdateClearsEditState(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{ID: "loc-1", OwnerID: "u1", Title: "old"}

	tests := []struct {
		name   string
		userID string
		input  UpdateInput
	}{
		{"empty title", "u1", UpdateInput{Title: "   "}},
		{"non-owner", "intruder", UpdateInput{Title: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.coordinator.BeginEdit("loc-1")
			require.NoError(t, f.coordinator.StageImage("new.jpg", "image/jpeg", validImage(64)))

			_, err := f.coordinator.Update(context.Background(), tt.userID, tt.input)
			require.Error(t, err)

			// No stale target or image lingers for the next request.
			assert.Equal(t, "", f.coordinator.EditTarget())

			f.log.reset()
			f.dropPin(t)
			_, err = f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "fresh"})
			require.NoError(t, err)
			assert.Equal(t, []string{"doc.create", "reload"}, f.log.list())
		})
	}
}

func TestCancelEditDiscardsTargetAndImage(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{ID: "loc-1", OwnerID: "u1", Title: "old"}

	f.coordinator.BeginEdit("loc-1")
	require.NoError(t, f.coordinator.StageImage("new.jpg", "image/jpeg", validImage(64)))
	f.coordinator.CancelEdit()

	assert.Equal(t, "", f.coordinator.EditTarget())
	_, err := f.coordinator.Update(context.Background(), "u1", UpdateInput{Title: "t"})
	require.Error(t, err)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{ID: "loc-1", OwnerID: "u1"}

	err := f.coordinator.Delete(context.Background(), "u1", "loc-1", false)

	require.Error(t, err)
	assert.Empty(t, f.log.list())
	assert.Contains(t, f.docs.records, "loc-1")
}

func TestDeleteRemovesImageThenRecord(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{
		ID: "loc-1", OwnerID: "u1", ImageURL: "https://images.test/u1/loc-1",
	}

	require.NoError(t, f.coordinator.Delete(context.Background(), "u1", "loc-1", true))

	assert.Equal(t, []string{"img.delete:u1/loc-1", "doc.delete:loc-1", "reload"}, f.log.list())
	assert.NotContains(t, f.docs.records, "loc-1")
}

func TestDeleteImageFailureDoesNotBlockRecordDelete(t *testing.T) {
	f := newMutationFixture()
	f.images.deleteErr = errors.New("storage down")
	f.docs.records["loc-1"] = models.LocationRecord{
		ID: "loc-1", OwnerID: "u1", ImageURL: "https://images.test/u1/loc-1",
	}

	require.NoError(t, f.coordinator.Delete(context.Background(), "u1", "loc-1", true))

	assert.NotContains(t, f.docs.records, "loc-1")
	assert.Equal(t, 1, f.reloader.count)
}

func TestRemoveImageClearsURLOnly(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{
		ID: "loc-1", OwnerID: "u1", Title: "keep me", ImageURL: "https://images.test/u1/loc-1",
	}

	require.NoError(t, f.coordinator.RemoveImage(context.Background(), "u1", "loc-1"))

	assert.Equal(t, []string{"img.delete:u1/loc-1", "doc.update:loc-1", "reload"}, f.log.list())
	rec := f.docs.records["loc-1"]
	assert.Empty(t, rec.ImageURL)
	assert.Equal(t, "keep me", rec.Title)
}

func TestRemoveImageNoOpWithoutImage(t *testing.T) {
	f := newMutationFixture()
	f.docs.records["loc-1"] = models.LocationRecord{ID: "loc-1", OwnerID: "u1"}

	require.NoError(t, f.coordinator.RemoveImage(context.Background(), "u1", "loc-1"))
	assert.Empty(t, f.log.list())
}

func TestTogglePlacingTwiceReturnsToIdle(t *testing.T) {
	f := newMutationFixture()

	assert.Equal(t, StatePlacing, f.coordinator.TogglePlacing())
	assert.Equal(t, StateIdle, f.coordinator.TogglePlacing())
	assert.Nil(t, f.coordinator.PendingPin())

	// Toggling off from PendingSubmit drops the temp pin and staged image.
	f.dropPin(t)
	require.NoError(t, f.coordinator.StageImage("pic.jpg", "image/jpeg", validImage(10)))
	assert.Equal(t, StateIdle, f.coordinator.TogglePlacing())
	assert.Nil(t, f.coordinator.PendingPin())

	_, err := f.coordinator.Create(context.Background(), "u1", CreateInput{Title: "spot"})
	require.Error(t, err)
}

func TestDropPinRequiresPlacingState(t *testing.T) {
	f := newMutationFixture()

	err := f.coordinator.DropPin(1, 2)
	require.Error(t, err)

	require.Equal(t, StatePlacing, f.coordinator.TogglePlacing())
	assert.Error(t, f.coordinator.DropPin(91, 0))
	assert.NoError(t, f.coordinator.DropPin(45, 90))
}

func TestVoteRecordsAndReloads(t *testing.T) {
	f := newMutationFixture()

	require.NoError(t, f.coordinator.Vote(context.Background(), "voter", "loc-1", true))
	require.NoError(t, f.coordinator.Vote(context.Background(), "voter", "loc-1", false))

	assert.Equal(t, []string{"doc.upvote:loc-1", "reload", "doc.downvote:loc-1", "reload"}, f.log.list())

	err := f.coordinator.Vote(context.Background(), "", "loc-1", true)
	require.Error(t, err)
}
