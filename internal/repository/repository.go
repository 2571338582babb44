// Package repository declares the persistence interfaces the delivery workflow
// talks to. They hold no business rules: legality of a change is decided by
// the caller, the stores only persist it.
package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DeliveryStore is the deliveries collection.
type DeliveryStore interface {
	Create(ctx context.Context, d *models.Delivery) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Delivery, error)
	GetByPIIHash(ctx context.Context, piiHash string) (*models.Delivery, error)
	// PatchStatus applies p only if the stored status and version still match the
	// expected ones, returning fault.ErrStatusConflict otherwise.
	PatchStatus(ctx context.Context, id primitive.ObjectID, p models.StatusPatch) (*models.Delivery, error)
	AddPhoto(ctx context.Context, id primitive.ObjectID, url string, at time.Time) (*models.Delivery, error)
	SetBlockchainTxHash(ctx context.Context, id primitive.ObjectID, txHash string, at time.Time) error
	Search(ctx context.Context, f models.DeliveryFilter, cursor string, limit int) (models.Page[models.Delivery], error)
	Report(ctx context.Context, f models.DeliveryFilter) (*models.DeliveryReport, error)
}

// AuditLog is the append-only deliveryLogs collection.
type AuditLog interface {
	Append(ctx context.Context, entry *models.DeliveryLog) error
	// List returns entries of one delivery, newest first.
	List(ctx context.Context, deliveryID primitive.ObjectID, cursor string, limit int) (models.Page[models.DeliveryLog], error)
}

// Directory resolves properties and units.
type Directory interface {
	GetProperty(ctx context.Context, id primitive.ObjectID) (*models.Property, error)
	GetUnit(ctx context.Context, id primitive.ObjectID) (*models.Unit, error)
	CreateProperty(ctx context.Context, p *models.Property) error
	CreateUnit(ctx context.Context, u *models.Unit) error
}

type IssueStore interface {
	Create(ctx context.Context, issue *models.DeliveryIssue) error
	ListByDelivery(ctx context.Context, deliveryID primitive.ObjectID) ([]models.DeliveryIssue, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Count(ctx context.Context) (int64, error)
}

// OutboxStore queues side effects for the outbox worker.
type OutboxStore interface {
	Enqueue(ctx context.Context, entry *models.OutboxEntry) error
	// ClaimDue leases up to limit pending entries whose NextAttemptAt has passed by
	// pushing their NextAttemptAt to now+lease. A ledger entry is only claimed
	// while no pending ledger entry of the same delivery has a lower Sequence.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEntry, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error
}

// Store bundles the collections behind one transaction boundary.
type Store interface {
	Deliveries() DeliveryStore
	Logs() AuditLog
	Directory() Directory
	Issues() IssueStore
	Users() UserStore
	Outbox() OutboxStore
	// WithTransaction runs fn so that every write made through ctx inside it
	// commits or rolls back together.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
