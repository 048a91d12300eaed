package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulse-newsletter-backend/internal/config"
	"pulse-newsletter-backend/internal/models"
	"pulse-newsletter-backend/internal/pkg/logger"
)

// MongoService archives generated newsletters and tracks their status
// lifecycle.
type MongoService struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logger.Logger
	config     config.MongoConfig
}

func NewMongoService(config config.MongoConfig, log *logger.Logger) (*MongoService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	service := &MongoService{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		logger:     log,
		config:     config,
	}

	log.Info("Mongo service initialized",
		"database", config.Database,
		"collection", config.Collection)

	return service, nil
}

func (service *MongoService) SaveNewsletter(ctx context.Context, document *models.NewsletterDocument) (string, error) {
	startTime := time.Now()

	document.CreatedAt = time.Now()
	document.UpdatedAt = document.CreatedAt

	result, err := service.collection.InsertOne(ctx, document)
	if err != nil {
		service.logger.LogService("mongo", "save_newsletter", time.Since(startTime), map[string]interface{}{
			"session_id": document.SessionID,
		}, err)
		return "", models.NewExternalError("MONGO_INSERT_FAILED", "failed to save newsletter").WithCause(err)
	}

	id := ""
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		id = oid.Hex()
	}

	service.logger.LogService("mongo", "save_newsletter", time.Since(startTime), map[string]interface{}{
		"session_id":    document.SessionID,
		"newsletter_id": id,
		"status":        string(document.Status),
	}, nil)

	return id, nil
}

func (service *MongoService) GetNewsletter(ctx context.Context, id string) (*models.NewsletterDocument, error) {
	startTime := time.Now()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewValidationError("INVALID_NEWSLETTER_ID", "newsletter id is not a valid object id").WithCause(err)
	}

	var document models.NewsletterDocument
	err = service.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&document)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.NewNotFoundError("NEWSLETTER_NOT_FOUND", "newsletter not found").WithMetadata("newsletter_id", id)
		}
		service.logger.LogService("mongo", "get_newsletter", time.Since(startTime), map[string]interface{}{
			"newsletter_id": id,
		}, err)
		return nil, models.NewExternalError("MONGO_FIND_FAILED", "failed to load newsletter").WithCause(err)
	}

	service.logger.LogService("mongo", "get_newsletter", time.Since(startTime), map[string]interface{}{
		"newsletter_id": id,
	}, nil)

	return &document, nil
}

func (service *MongoService) UpdateNewsletterStatus(ctx context.Context, id string, status models.NewsletterStatus) error {
	startTime := time.Now()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.NewValidationError("INVALID_NEWSLETTER_ID", "newsletter id is not a valid object id").WithCause(err)
	}

	update := bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}}

	result, err := service.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		service.logger.LogService("mongo", "update_newsletter_status", time.Since(startTime), map[string]interface{}{
			"newsletter_id": id,
			"status":        string(status),
		}, err)
		return models.NewExternalError("MONGO_UPDATE_FAILED", "failed to update newsletter status").WithCause(err)
	}

	if result.MatchedCount == 0 {
		return models.NewNotFoundError("NEWSLETTER_NOT_FOUND", "newsletter not found").WithMetadata("newsletter_id", id)
	}

	service.logger.LogService("mongo", "update_newsletter_status", time.Since(startTime), map[string]interface{}{
		"newsletter_id": id,
		"status":        string(status),
	}, nil)

	return nil
}

func (service *MongoService) ListNewsletters(ctx context.Context, sessionID string, limit int64) ([]models.NewsletterDocument, error) {
	startTime := time.Now()

	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := service.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		service.logger.LogService("mongo", "list_newsletters", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
		}, err)
		return nil, models.NewExternalError("MONGO_FIND_FAILED", "failed to list newsletters").WithCause(err)
	}
	defer cursor.Close(ctx)

	var documents []models.NewsletterDocument
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, models.NewExternalError("MONGO_DECODE_FAILED", "failed to decode newsletters").WithCause(err)
	}

	service.logger.LogService("mongo", "list_newsletters", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"count":      len(documents),
	}, nil)

	return documents, nil
}

func (service *MongoService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo connection unhealthy: %w", err)
	}
	return nil
}

func (service *MongoService) Close(ctx context.Context) error {
	service.logger.Info("closing Mongo service")
	return service.client.Disconnect(ctx)
}
