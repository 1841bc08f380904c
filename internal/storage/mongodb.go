package storage

import (
	"context"
	"errors"
	"time"

	"webhook-dispatcher/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	webhooksCollection   = "webhooks"
	deliveriesCollection = "deliveries"
)

type MongoDB struct {
	client     *mongo.Client
	webhooks   *mongo.Collection
	deliveries *mongo.Collection
	logger     *zap.Logger
}

var _ Store = (*MongoDB)(nil)

func NewMongoDB(uri, database string, logger *zap.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(30 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to MongoDB",
		zap.String("database", database),
	)

	db := client.Database(database)
	m := &MongoDB{
		client:     client,
		webhooks:   db.Collection(webhooksCollection),
		deliveries: db.Collection(deliveriesCollection),
		logger:     logger,
	}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "webhook_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "event_id", Value: 1}},
		},
	}
	if _, err := m.deliveries.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	if _, err := m.webhooks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "enabled", Value: 1}},
	}); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *MongoDB) InsertWebhook(ctx context.Context, w *models.WebhookConfig) error {
	_, err := m.webhooks.InsertOne(ctx, w)
	if err != nil {
		m.logger.Error("Failed to insert webhook",
			zap.Error(err),
			zap.String("webhook_id", w.ID))
	}
	return err
}

func (m *MongoDB) GetWebhook(ctx context.Context, id string) (*models.WebhookConfig, error) {
	var w models.WebhookConfig
	err := m.webhooks.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (m *MongoDB) ListWebhooks(ctx context.Context, enabled *bool) ([]*models.WebhookConfig, error) {
	filter := bson.M{}
	if enabled != nil {
		filter["enabled"] = *enabled
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.webhooks.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*models.WebhookConfig
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoDB) UpdateWebhook(ctx context.Context, w *models.WebhookConfig) error {
	res, err := m.webhooks.ReplaceOne(ctx, bson.M{"_id": w.ID}, w)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *MongoDB) TouchLastCalled(ctx context.Context, id string, at time.Time) error {
	_, err := m.webhooks.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_called_at": at}},
	)
	return err
}

func (m *MongoDB) DeleteWebhook(ctx context.Context, id string) error {
	res, err := m.webhooks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *MongoDB) InsertDelivery(ctx context.Context, d *models.DeliveryAttempt) error {
	_, err := m.deliveries.InsertOne(ctx, d)
	if err != nil {
		m.logger.Error("Failed to insert delivery attempt",
			zap.Error(err),
			zap.String("webhook_id", d.WebhookID),
			zap.String("event_id", d.EventID))
	}
	return err
}

func (m *MongoDB) GetDelivery(ctx context.Context, webhookID, deliveryID string) (*models.DeliveryAttempt, error) {
	var d models.DeliveryAttempt
	err := m.deliveries.FindOne(ctx, bson.M{"_id": deliveryID, "webhook_id": webhookID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MongoDB) ListDeliveries(ctx context.Context, webhookID string, limit, offset int64) ([]*models.DeliveryAttempt, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := m.deliveries.Find(ctx, bson.M{"webhook_id": webhookID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*models.DeliveryAttempt
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
