package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pinmap-server/models"
)

// DocumentStore wraps the MongoDB collections backing locations and users.
type DocumentStore struct {
	client    *mongo.Client
	locations *mongo.Collection
	users     *mongo.Collection
}

func NewDocumentStore(ctx context.Context, uri, dbName string) (*DocumentStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	db := client.Database(dbName)
	store := &DocumentStore{
		client:    client,
		locations: db.Collection("locations"),
		users:     db.Collection("users"),
	}

	// Unique index on username and email, matching registration checks.
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}, {Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := store.users.Indexes().CreateOne(ctx, indexModel); err != nil {
		log.Warn().Err(err).Msg("failed to create unique index on users")
	}

	return store, nil
}

// Ping reports whether the document store is reachable. Used by the
// connectivity monitor.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *DocumentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListAll returns every location record, newest first.
func (s *DocumentStore) ListAll(ctx context.Context) ([]models.LocationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.locations.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.LocationRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (models.LocationRecord, error) {
	var record models.LocationRecord
	err := s.locations.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	return record, err
}

// Create inserts a new location record and returns its backend-assigned
// identifier.
func (s *DocumentStore) Create(ctx context.Context, record models.LocationRecord) (string, error) {
	record.ID = uuid.New().String()
	if record.Upvotes == nil {
		record.Upvotes = []string{}
	}
	if record.Downvotes == nil {
		record.Downvotes = []string{}
	}
	// Client-side timestamps keep ListAll ordering sane even if the server
	// stamp below fails.
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if _, err := s.locations.InsertOne(ctx, record); err != nil {
		return "", err
	}
	// Re-stamp with the server clock.
	update := bson.M{"$currentDate": bson.M{"created_at": true, "updated_at": true}}
	if _, err := s.locations.UpdateOne(ctx, bson.M{"_id": record.ID}, update); err != nil {
		log.Warn().Err(err).Str("location_id", record.ID).Msg("failed to stamp server timestamps")
	}
	return record.ID, nil
}

// Update applies a partial $set and refreshes updated_at with the server
// clock.
func (s *DocumentStore) Update(ctx context.Context, id string, fields bson.M) error {
	update := bson.M{
		"$set":         fields,
		"$currentDate": bson.M{"updated_at": true},
	}
	result, err := s.locations.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.locations.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Vote records voterID in one vote set and removes it from the other, so a
// voter holds at most one vote per location.
func (s *DocumentStore) Vote(ctx context.Context, id, voterID string, up bool) error {
	add, pull := "upvotes", "downvotes"
	if !up {
		add, pull = pull, add
	}
	update := bson.M{
		"$addToSet":    bson.M{add: voterID},
		"$pull":        bson.M{pull: voterID},
		"$currentDate": bson.M{"updated_at": true},
	}
	result, err := s.locations.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *DocumentStore) FindUserByPublicID(ctx context.Context, publicID string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"public_id": publicID}).Decode(&user)
	return user, err
}

func (s *DocumentStore) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	return user, err
}

func (s *DocumentStore) InsertUser(ctx context.Context, user models.User) error {
	_, err := s.users.InsertOne(ctx, user)
	return err
}
