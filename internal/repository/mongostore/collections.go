// internal/repository/mongostore/collections.go
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

// --- deliveryLogs ---

type auditLog struct {
	col *mongo.Collection
}

func (r auditLog) Append(ctx context.Context, entry *models.DeliveryLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

func (r auditLog) List(ctx context.Context, deliveryID primitive.ObjectID, cursor string, limit int) (models.Page[models.DeliveryLog], error) {
	offset, err := repository.DecodeCursor(cursor)
	if err != nil {
		return models.Page[models.DeliveryLog]{}, err
	}
	limit = repository.NormalizeLimit(limit)

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, bson.M{"deliveryId": deliveryID}, opts)
	if err != nil {
		return models.Page[models.DeliveryLog]{}, fmt.Errorf("failed to query delivery logs: %w", err)
	}
	defer cur.Close(ctx)

	var rows []models.DeliveryLog
	if err := cur.All(ctx, &rows); err != nil {
		return models.Page[models.DeliveryLog]{}, fmt.Errorf("failed to decode delivery logs: %w", err)
	}
	items, next, done := repository.PageOf(rows, offset, limit)
	return models.Page[models.DeliveryLog]{Items: items, NextCursor: next, IsDone: done}, nil
}

// --- properties / units ---

type directory struct {
	properties *mongo.Collection
	units      *mongo.Collection
}

func (r directory) GetProperty(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	var p models.Property
	if err := r.properties.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fault.ErrPropertyNotFound
		}
		return nil, fmt.Errorf("failed to retrieve property: %w", err)
	}
	return &p, nil
}

func (r directory) GetUnit(ctx context.Context, id primitive.ObjectID) (*models.Unit, error) {
	var u models.Unit
	if err := r.units.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fault.ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to retrieve unit: %w", err)
	}
	return &u, nil
}

func (r directory) CreateProperty(ctx context.Context, p *models.Property) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := r.properties.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}
	return nil
}

func (r directory) CreateUnit(ctx context.Context, u *models.Unit) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := r.units.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

// --- deliveryIssues ---

type issueStore struct {
	col *mongo.Collection
}

func (r issueStore) Create(ctx context.Context, issue *models.DeliveryIssue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, issue); err != nil {
		return fmt.Errorf("failed to create delivery issue: %w", err)
	}
	return nil
}

func (r issueStore) ListByDelivery(ctx context.Context, deliveryID primitive.ObjectID) ([]models.DeliveryIssue, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"deliveryId": deliveryID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery issues: %w", err)
	}
	defer cur.Close(ctx)

	var issues []models.DeliveryIssue
	if err := cur.All(ctx, &issues); err != nil {
		return nil, fmt.Errorf("failed to decode delivery issues: %w", err)
	}
	if issues == nil {
		issues = []models.DeliveryIssue{}
	}
	return issues, nil
}

// --- users ---

type userStore struct {
	col *mongo.Collection
}

func (r userStore) get(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fault.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return &u, nil
}

func (r userStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.get(ctx, bson.M{"_id": id})
}

func (r userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, bson.M{"email": email})
}

func (r userStore) Create(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r userStore) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}

// --- outbox ---

type outboxStore struct {
	col *mongo.Collection
}

func (r outboxStore) Enqueue(ctx context.Context, entry *models.OutboxEntry) error {
	if _, err := r.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

func (r outboxStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	claimed, err := r.claimNotifications(ctx, now, lease, limit)
	if err != nil || len(claimed) >= limit {
		return claimed, err
	}
	ledger, err := r.claimLedgerHeads(ctx, now, lease, limit-len(claimed))
	return append(claimed, ledger...), err
}

func (r outboxStore) claimNotifications(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	filter := bson.M{
		"kind":          models.OutboxNotification,
		"status":        models.OutboxPending,
		"nextAttemptAt": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"nextAttemptAt": now.Add(lease)}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}}).
		SetReturnDocument(options.After)

	claimed := []models.OutboxEntry{}
	for len(claimed) < limit {
		var e models.OutboxEntry
		err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
		if err == mongo.ErrNoDocuments {
			break
		}
		if err != nil {
			return claimed, fmt.Errorf("failed to claim outbox entry: %w", err)
		}
		claimed = append(claimed, e)
	}
	return claimed, nil
}

// claimLedgerHeads leases the lowest-sequence pending ledger entry of each
// delivery when it is due. Later entries wait until the head is done or dead.
func (r outboxStore) claimLedgerHeads(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"kind": models.OutboxLedger, "status": models.OutboxPending}}},
		{{Key: "$sort", Value: bson.D{{Key: "deliveryId", Value: 1}, {Key: "sequence", Value: 1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$deliveryId", "head": bson.M{"$first": "$$ROOT"}}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$head"}}},
		{{Key: "$match", Value: bson.M{"nextAttemptAt": bson.M{"$lte": now}}}},
		{{Key: "$sort", Value: bson.D{{Key: "nextAttemptAt", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to find due ledger entries: %w", err)
	}
	heads := []models.OutboxEntry{}
	if err := cursor.All(ctx, &heads); err != nil {
		return nil, fmt.Errorf("failed to decode due ledger entries: %w", err)
	}

	update := bson.M{"$set": bson.M{"nextAttemptAt": now.Add(lease)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	claimed := []models.OutboxEntry{}
	for _, h := range heads {
		filter := bson.M{
			"_id":           h.ID,
			"status":        models.OutboxPending,
			"nextAttemptAt": bson.M{"$lte": now},
		}
		var e models.OutboxEntry
		err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
		if err == mongo.ErrNoDocuments {
			// another worker leased it first
			continue
		}
		if err != nil {
			return claimed, fmt.Errorf("failed to claim ledger entry: %w", err)
		}
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (r outboxStore) MarkDone(ctx context.Context, id string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": models.OutboxDone, "lastError": ""},
		"$inc": bson.M{"attempts": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry done: %w", err)
	}
	return nil
}

func (r outboxStore) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"attempts":      attempts,
		"nextAttemptAt": next,
		"lastError":     lastErr,
	}})
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox entry: %w", err)
	}
	return nil
}

func (r outboxStore) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":    models.OutboxDead,
		"attempts":  attempts,
		"lastError": lastErr,
	}})
	if err != nil {
		return fmt.Errorf("failed to mark outbox entry dead: %w", err)
	}
	return nil
}
