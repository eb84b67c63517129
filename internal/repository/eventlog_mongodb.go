package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"gameshop-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBEventLogRepository implements EventLogRepository for MongoDB.
type MongoDBEventLogRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBEventLogRepository connects to MongoDB and prepares the event collection.
func NewMongoDBEventLogRepository(uri, dbName, collectionName string) (*MongoDBEventLogRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(dbName).Collection(collectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("[MongoDB] Warning: failed to create indexes: %v", err)
	}

	log.Printf("[MongoDB] Connected to %s/%s", dbName, collectionName)
	return &MongoDBEventLogRepository{
		client:     client,
		collection: coll,
	}, nil
}

// InsertGatewayEvent inserts a new event.
func (r *MongoDBEventLogRepository) InsertGatewayEvent(ctx context.Context, e *model.GatewayEvent) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, e)
	return err
}

// ListGatewayEvents returns events newest first with pagination.
func (r *MongoDBEventLogRepository) ListGatewayEvents(ctx context.Context, limit, offset int) ([]model.GatewayEvent, int64, error) {
	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "received_at", Value: -1}})
	findOptions.SetLimit(int64(limit))
	findOptions.SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var events []model.GatewayEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, err
	}

	// Ensure not nil slice for JSON
	if events == nil {
		events = []model.GatewayEvent{}
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	return events, count, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBEventLogRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ EventLogRepository = (*MongoDBEventLogRepository)(nil)
