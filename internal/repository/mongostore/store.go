// internal/repository/mongostore/store.go
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/repository"
)

// Collection names.
const (
	colDeliveries = "deliveries"
	colLogs       = "deliveryLogs"
	colIssues     = "deliveryIssues"
	colProperties = "properties"
	colUnits      = "units"
	colUsers      = "users"
	colOutbox     = "outbox"
)

type Store struct {
	DB *mongo.Database
}

var _ repository.Store = (*Store)(nil)

// Connect opens the client, pings it and returns a store over cfg.DBName.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	log.Printf("Connected to MongoDB database %s", cfg.DBName)

	return &Store{DB: client.Database(cfg.DBName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.DB.Client().Disconnect(ctx)
}

func (s *Store) Deliveries() repository.DeliveryStore {
	return deliveryStore{col: s.DB.Collection(colDeliveries)}
}
func (s *Store) Logs() repository.AuditLog { return auditLog{col: s.DB.Collection(colLogs)} }
func (s *Store) Directory() repository.Directory {
	return directory{properties: s.DB.Collection(colProperties), units: s.DB.Collection(colUnits)}
}
func (s *Store) Issues() repository.IssueStore { return issueStore{col: s.DB.Collection(colIssues)} }
func (s *Store) Users() repository.UserStore   { return userStore{col: s.DB.Collection(colUsers)} }
func (s *Store) Outbox() repository.OutboxStore {
	return outboxStore{col: s.DB.Collection(colOutbox)}
}

// WithTransaction runs fn inside a multi-document transaction. Repositories
// called with the ctx handed to fn join it. Requires a replica set.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.DB.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start database session: %w", err)
	}
	defer session.EndSession(context.Background())

	callback := func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}
	_, err = session.WithTransaction(ctx, callback)
	return err
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colDeliveries: {
			{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "propertyId", Value: 1}, {Key: "unitId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "piiHash", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "trackingNumber", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colLogs: {
			{Keys: bson.D{{Key: "deliveryId", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		colIssues: {
			{Keys: bson.D{{Key: "deliveryId", Value: 1}}},
		},
		colUnits: {
			{Keys: bson.D{{Key: "propertyId", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}, {Key: "deliveryId", Value: 1}, {Key: "sequence", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := s.DB.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
