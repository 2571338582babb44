package delivery

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/metrics"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/pii"
	"property-delivery-api-server/internal/policy"
	"property-delivery-api-server/internal/repository"
)

// Hasher derives the PII hash of a recipient.
type Hasher interface {
	Hash(r pii.Recipient) (string, error)
}

// Ledger is the blockchain mirror.
type Ledger interface {
	Submit(ctx context.Context, w models.LedgerWrite) (blockchain.Receipt, error)
	Status(ctx context.Context, piiHash string) (*blockchain.Record, error)
}

// PhotoStore keeps uploaded photos and returns their URL.
type PhotoStore interface {
	Upload(ctx context.Context, folder string, file io.Reader, contentType string) (string, error)
}

// Deps are the collaborators of a Workflow. Ledger and Photos may be nil when
// the service runs without them.
type Deps struct {
	Store      repository.Store
	Hasher     Hasher
	Ledger     Ledger
	Photos     PhotoStore
	LedgerMode string
}

// Workflow runs every delivery operation: it loads the delivery, asks the
// access policy, validates the transition and commits the status patch, its
// audit entry and its side effects in one transaction.
type Workflow struct {
	store  repository.Store
	hasher Hasher
	ledger Ledger
	photos PhotoStore
	mode   string

	now   func() time.Time
	newID func() string
}

func NewWorkflow(deps Deps) *Workflow {
	mode := deps.LedgerMode
	if mode == "" {
		mode = config.LedgerModeOutbox
	}
	return &Workflow{
		store:  deps.Store,
		hasher: deps.Hasher,
		ledger: deps.Ledger,
		photos: deps.Photos,
		mode:   mode,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// scope is a delivery together with what the policy needs to judge access to it.
type scope struct {
	delivery *models.Delivery
	property *models.Property
	unit     *models.Unit
}

func (s scope) resource() policy.Resource {
	return policy.Resource{Property: s.property, Unit: s.unit}
}

func (w *Workflow) load(ctx context.Context, actor *models.User, id string, action policy.Action) (scope, error) {
	if actor == nil {
		return scope{}, fault.ErrIdentityRequired
	}
	deliveryID, err := parseID(id, fault.ErrDeliveryNotFound)
	if err != nil {
		return scope{}, err
	}
	d, err := w.store.Deliveries().Get(ctx, deliveryID)
	if err != nil {
		return scope{}, err
	}
	return w.scopeOf(ctx, actor, d, action)
}

func (w *Workflow) scopeOf(ctx context.Context, actor *models.User, d *models.Delivery, action policy.Action) (scope, error) {
	s := scope{delivery: d}
	var err error
	s.property, err = w.store.Directory().GetProperty(ctx, d.PropertyID)
	if err != nil {
		return scope{}, err
	}
	if d.UnitID != nil {
		s.unit, err = w.store.Directory().GetUnit(ctx, *d.UnitID)
		if err != nil {
			return scope{}, err
		}
	}
	if err := policy.Authorize(actor, s.resource(), action); err != nil {
		return scope{}, err
	}
	return s, nil
}

// commit is one state change ready to be written.
type commit struct {
	delivery *models.Delivery
	// create inserts delivery instead of patching it
	create bool
	// patch is nil when the status does not change
	patch         *models.StatusPatch
	entry         models.DeliveryLog
	issue         *models.DeliveryIssue
	notifications []models.Notification
	ledger        *models.LedgerWrite
}

func (w *Workflow) ledgerEnabled() bool {
	return w.ledger != nil
}

// checkLedger applies the ledger's own transition table to mirrored deliveries.
func (w *Workflow) checkLedger(d *models.Delivery, target models.DeliveryStatus) (*models.LedgerWrite, error) {
	if d.PIIHash == "" || !w.ledgerEnabled() {
		return nil, nil
	}
	if !LedgerCanTransition(d.Status, target) {
		return nil, fault.TransitionError{From: string(d.Status), To: string(target)}
	}
	return blockchain.Write(d.PIIHash, target)
}

// apply writes c. In sync ledger mode the ledger write happens first and a
// failure aborts the change; in outbox mode it is queued with the change.
func (w *Workflow) apply(ctx context.Context, c commit) (*models.Delivery, error) {
	now := w.now()

	if c.ledger != nil && w.mode == config.LedgerModeSync {
		receipt, err := w.ledger.Submit(ctx, *c.ledger)
		if err != nil {
			return nil, err
		}
		c.entry.BlockchainTxHash = receipt.TxHash
		if c.create {
			c.delivery.BlockchainTxHash = receipt.TxHash
		} else if c.patch != nil {
			c.patch.TxHash = receipt.TxHash
		}
	}

	result := c.delivery
	err := w.store.WithTransaction(ctx, func(ctx context.Context) error {
		if c.create {
			if err := w.store.Deliveries().Create(ctx, c.delivery); err != nil {
				return err
			}
		} else if c.patch != nil {
			updated, err := w.store.Deliveries().PatchStatus(ctx, c.delivery.ID, *c.patch)
			if err != nil {
				return err
			}
			result = updated
		}

		c.entry.DeliveryID = result.ID
		c.entry.PropertyID = result.PropertyID
		c.entry.Timestamp = now
		c.entry.CreatedAt = now
		if err := w.store.Logs().Append(ctx, &c.entry); err != nil {
			return err
		}

		if c.issue != nil {
			c.issue.DeliveryID = result.ID
			c.issue.PropertyID = result.PropertyID
			c.issue.CreatedAt = now
			if err := w.store.Issues().Create(ctx, c.issue); err != nil {
				return err
			}
		}

		for i := range c.notifications {
			if err := w.enqueue(ctx, result, models.OutboxEntry{
				Kind:         models.OutboxNotification,
				Notification: &c.notifications[i],
			}, now); err != nil {
				return err
			}
		}

		if c.ledger != nil && w.mode != config.LedgerModeSync {
			if err := w.enqueue(ctx, result, models.OutboxEntry{
				Kind:   models.OutboxLedger,
				Ledger: c.ledger,
			}, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if c.entry.BlockchainTxHash != "" {
			log.Printf("Ledger divergence: tx %s committed for delivery %s (%s) but the database write failed: %v",
				c.entry.BlockchainTxHash, c.delivery.ID.Hex(), c.entry.Action, err)
		}
		return nil, err
	}

	if c.patch != nil {
		metrics.Transitions.WithLabelValues(string(c.patch.ExpectedStatus), string(c.patch.Status)).Inc()
	} else if c.create {
		metrics.Transitions.WithLabelValues("", string(result.Status)).Inc()
	}
	return result, nil
}

func (w *Workflow) enqueue(ctx context.Context, d *models.Delivery, e models.OutboxEntry, now time.Time) error {
	e.ID = w.newID()
	e.DeliveryID = d.ID
	e.Sequence = d.Version
	e.Status = models.OutboxPending
	e.NextAttemptAt = now
	e.CreatedAt = now
	return w.store.Outbox().Enqueue(ctx, &e)
}

// observe counts a rejected operation by error class.
func observe(err error) {
	if err == nil {
		return
	}
	reason := "internal"
	switch {
	case fault.IsErrUnauthenticated(err):
		reason = "unauthenticated"
	case fault.IsErrForbidden(err):
		reason = "forbidden"
	case fault.IsErrNotFound(err):
		reason = "not_found"
	case fault.IsErrTransition(err):
		reason = "invalid_transition"
	case fault.IsErrInvalid(err):
		reason = "invalid"
	case fault.IsErrConflict(err):
		reason = "conflict"
	case fault.IsErrDependency(err):
		reason = "dependency"
	}
	metrics.Rejections.WithLabelValues(reason).Inc()
}
