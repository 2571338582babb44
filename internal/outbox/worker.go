// Package outbox delivers the side effects committed with delivery changes:
// notifications and ledger writes. Entries are claimed with a lease, retried
// with exponential backoff and marked dead once they run out of attempts.
package outbox

import (
	"context"
	"log"
	"time"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/metrics"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

const (
	maxBackoff      = time.Hour
	dispatchTimeout = 30 * time.Second
)

type Notifier interface {
	Dispatch(deliveryID string, n models.Notification) error
}

type LedgerSubmitter interface {
	Submit(ctx context.Context, w models.LedgerWrite) (blockchain.Receipt, error)
}

type Worker struct {
	store    repository.Store
	notifier Notifier
	ledger   LedgerSubmitter
	cfg      config.OutboxConfig
	now      func() time.Time

	shutdown chan struct{}
	finished chan struct{}
}

func New(store repository.Store, notifier Notifier, ledger LedgerSubmitter, cfg config.OutboxConfig) *Worker {
	return &Worker{
		store:    store,
		notifier: notifier,
		ledger:   ledger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start runs the polling loop in the background until Stop.
func (w *Worker) Start() {
	w.shutdown = make(chan struct{})
	w.finished = make(chan struct{})
	go func() {
		w.Run(w.shutdown)
		close(w.finished)
	}()
}

// Stop signals the loop and waits for the current pass to finish.
func (w *Worker) Stop() {
	if w.shutdown == nil {
		return
	}
	close(w.shutdown)
	<-w.finished
	w.shutdown = nil
}

// Run polls every PollInterval until shutdown is closed.
func (w *Worker) Run(shutdown <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.ProcessDue(context.Background()); err != nil {
				log.Printf("Outbox: poll failed: %v", err)
			}
		case <-shutdown:
			return
		}
	}
}

// ProcessDue claims one batch of due entries and dispatches them, returning how
// many were delivered.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	entries, err := w.store.Outbox().ClaimDue(ctx, w.now(), w.lease(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range entries {
		dispatchErr := w.dispatch(ctx, e)
		if dispatchErr == nil {
			if err := w.store.Outbox().MarkDone(ctx, e.ID); err != nil {
				log.Printf("Outbox: failed to mark entry %s done: %v", e.ID, err)
			}
			metrics.OutboxDispatch.WithLabelValues(string(e.Kind), "done").Inc()
			delivered++
			continue
		}
		w.fail(ctx, e, dispatchErr)
	}
	return delivered, nil
}

func (w *Worker) dispatch(ctx context.Context, e models.OutboxEntry) error {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	switch e.Kind {
	case models.OutboxNotification:
		if e.Notification == nil {
			return errMalformed
		}
		return w.notifier.Dispatch(e.DeliveryID.Hex(), *e.Notification)

	case models.OutboxLedger:
		if e.Ledger == nil {
			return errMalformed
		}
		if w.ledger == nil {
			return fault.ErrLedgerUnavailable
		}
		receipt, err := w.ledger.Submit(ctx, *e.Ledger)
		if err != nil {
			return err
		}
		if err := w.store.Deliveries().SetBlockchainTxHash(ctx, e.DeliveryID, receipt.TxHash, w.now()); err != nil {
			// the ledger write is committed; retrying it would be rejected on-chain
			log.Printf("Outbox: ledger tx %s for delivery %s committed but not recorded: %v", receipt.TxHash, e.DeliveryID.Hex(), err)
		}
		return nil
	}
	return errMalformed
}

func (w *Worker) fail(ctx context.Context, e models.OutboxEntry, cause error) {
	attempts := e.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		log.Printf("Outbox: %s entry %s for delivery %s is dead after %d attempts: %v", e.Kind, e.ID, e.DeliveryID.Hex(), attempts, cause)
		if err := w.store.Outbox().MarkDead(ctx, e.ID, attempts, cause.Error()); err != nil {
			log.Printf("Outbox: failed to mark entry %s dead: %v", e.ID, err)
		}
		metrics.OutboxDispatch.WithLabelValues(string(e.Kind), "dead").Inc()
		return
	}

	next := w.now().Add(Backoff(w.cfg.BaseBackoff, attempts))
	log.Printf("Outbox: %s entry %s for delivery %s failed (attempt %d), retrying at %s: %v", e.Kind, e.ID, e.DeliveryID.Hex(), attempts, next.Format(time.RFC3339), cause)
	if err := w.store.Outbox().Reschedule(ctx, e.ID, attempts, next, cause.Error()); err != nil {
		log.Printf("Outbox: failed to reschedule entry %s: %v", e.ID, err)
	}
	metrics.OutboxDispatch.WithLabelValues(string(e.Kind), "retry").Inc()
}

// lease keeps a claimed entry invisible to other workers while it is dispatched.
func (w *Worker) lease() time.Duration {
	if l := 2 * w.cfg.PollInterval; l > dispatchTimeout {
		return l
	}
	return 2 * dispatchTimeout
}

// Backoff returns base * 2^(attempts-1), capped at an hour.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
