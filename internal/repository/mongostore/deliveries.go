// internal/repository/mongostore/deliveries.go
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

type deliveryStore struct {
	col *mongo.Collection
}

func (r deliveryStore) Create(ctx context.Context, d *models.Delivery) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if _, err := r.col.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (r deliveryStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.Delivery, error) {
	var d models.Delivery
	err := r.col.FindOne(ctx, filter, opts...).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fault.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to retrieve delivery: %w", err)
	}
	return &d, nil
}

func (r deliveryStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Delivery, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r deliveryStore) GetByPIIHash(ctx context.Context, piiHash string) (*models.Delivery, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"piiHash": piiHash}, opts)
}

func (r deliveryStore) PatchStatus(ctx context.Context, id primitive.ObjectID, p models.StatusPatch) (*models.Delivery, error) {
	filter := bson.M{
		"_id":     id,
		"status":  p.ExpectedStatus,
		"version": p.ExpectedVersion,
	}
	set := bson.M{
		"status":    p.Status,
		"updatedAt": p.UpdatedAt,
	}
	if p.UnitID != nil {
		set["unitId"] = *p.UnitID
	}
	if p.ActualDelivery != nil {
		set["actualDelivery"] = *p.ActualDelivery
	}
	if p.TxHash != "" {
		set["blockchainTxHash"] = p.TxHash
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}

	var d models.Delivery
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == nil {
		return &d, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to patch delivery status: %w", err)
	}

	// the filter missed: either the delivery is gone or someone else moved it
	count, countErr := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return nil, fmt.Errorf("failed to check delivery existence: %w", countErr)
	}
	if count == 0 {
		return nil, fault.ErrDeliveryNotFound
	}
	return nil, fault.ErrStatusConflict
}

func (r deliveryStore) AddPhoto(ctx context.Context, id primitive.ObjectID, url string, at time.Time) (*models.Delivery, error) {
	update := bson.M{
		"$push": bson.M{"photos": url},
		"$set":  bson.M{"updatedAt": at},
	}
	var d models.Delivery
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fault.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to add delivery photo: %w", err)
	}
	return &d, nil
}

func (r deliveryStore) SetBlockchainTxHash(ctx context.Context, id primitive.ObjectID, txHash string, at time.Time) error {
	result, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"blockchainTxHash": txHash,
		"updatedAt":        at,
	}})
	if err != nil {
		return fmt.Errorf("failed to record ledger tx hash: %w", err)
	}
	if result.MatchedCount == 0 {
		return fault.ErrDeliveryNotFound
	}
	return nil
}

func filterDocument(f models.DeliveryFilter) bson.M {
	filter := bson.M{}
	if !f.PropertyID.IsZero() {
		filter["propertyId"] = f.PropertyID
	}
	if f.UnitID != nil {
		filter["unitId"] = *f.UnitID
		if f.CommonArea {
			filter["unitId"] = bson.M{"$in": bson.A{*f.UnitID, nil}}
		}
	}
	if f.DeliveryType != "" {
		filter["deliveryType"] = f.DeliveryType
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		filter["createdAt"] = created
	}
	if f.TrackingNumber != "" {
		filter["trackingNumber"] = f.TrackingNumber
	}
	if f.Text != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Text), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"recipientName": pattern},
			bson.M{"senderName": pattern},
			bson.M{"senderCompany": pattern},
			bson.M{"description": pattern},
			bson.M{"trackingNumber": pattern},
		}
	}
	return filter
}

func (r deliveryStore) Search(ctx context.Context, f models.DeliveryFilter, cursor string, limit int) (models.Page[models.Delivery], error) {
	offset, err := repository.DecodeCursor(cursor)
	if err != nil {
		return models.Page[models.Delivery]{}, err
	}
	limit = repository.NormalizeLimit(limit)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, filterDocument(f), opts)
	if err != nil {
		return models.Page[models.Delivery]{}, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer cur.Close(ctx)

	var rows []models.Delivery
	if err := cur.All(ctx, &rows); err != nil {
		return models.Page[models.Delivery]{}, fmt.Errorf("failed to decode deliveries: %w", err)
	}
	items, next, done := repository.PageOf(rows, offset, limit)
	return models.Page[models.Delivery]{Items: items, NextCursor: next, IsDone: done}, nil
}

type groupCount struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (r deliveryStore) Report(ctx context.Context, f models.DeliveryFilter) (*models.DeliveryReport, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterDocument(f)}},
		{{Key: "$facet", Value: bson.M{
			"byStatus": bson.A{bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
			"byType":   bson.A{bson.M{"$group": bson.M{"_id": "$deliveryType", "count": bson.M{"$sum": 1}}}},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate deliveries: %w", err)
	}
	defer cur.Close(ctx)

	var facets []struct {
		ByStatus []groupCount `bson:"byStatus"`
		ByType   []groupCount `bson:"byType"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode delivery report: %w", err)
	}

	report := &models.DeliveryReport{
		PropertyID: f.PropertyID,
		ByStatus:   map[models.DeliveryStatus]int64{},
		ByType:     map[models.DeliveryType]int64{},
		From:       f.From,
		To:         f.To,
	}
	if len(facets) == 0 {
		return report, nil
	}
	for _, g := range facets[0].ByStatus {
		report.ByStatus[models.DeliveryStatus(g.Key)] = g.Count
		report.Total += g.Count
	}
	for _, g := range facets[0].ByType {
		report.ByType[models.DeliveryType(g.Key)] = g.Count
	}
	return report, nil
}
