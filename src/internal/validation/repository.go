package validation

import (
	"context"

	"expense-validation-svc/src/clients"
	"expense-validation-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type auditRepository struct {
	collection *mongo.Collection
}

func NewAuditRepository(db *clients.MongoDB, collectionName string) AuditRepository {
	collection := db.Database.Collection(collectionName)
	return &auditRepository{collection: collection}
}

func (r *auditRepository) Insert(ctx context.Context, record *AuditRecord) error {
	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		logrus.WithError(err).WithField("validation_id", record.ValidationID).Error("Failed to insert validation record")
		return models.ErrDatabaseInsert
	}

	return nil
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to query validation records")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	records := make([]*AuditRecord, 0, limit)
	if err := cursor.All(ctx, &records); err != nil {
		logrus.WithError(err).Error("Failed to decode validation records")
		return nil, models.ErrDatabaseQuery
	}

	return records, nil
}
