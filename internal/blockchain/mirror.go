// internal/blockchain/mirror.go
package blockchain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/sha3"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/metrics"
	"property-delivery-api-server/internal/models"
)

// contract functions per target status
var functions = map[models.DeliveryStatus]string{
	models.StatusRegistered: "registerDelivery",
	models.StatusArrived:    "markArrived",
	models.StatusCollected:  "markCollected",
	models.StatusFailed:     "markFailed",
	models.StatusReturned:   "markReturned",
}

const getDelivery = "getDelivery"

// Receipt identifies a committed ledger write.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Record is the ledger's view of a delivery.
type Record struct {
	Key       string                `json:"key"`
	Status    models.DeliveryStatus `json:"status"`
	UpdatedAt int64                 `json:"updatedAt"`
	TxHash    string                `json:"txHash,omitempty"`
}

// Mirror writes delivery status changes to the ledger under a key derived from
// the delivery's PII hash.
type Mirror struct {
	client LedgerClient
}

func NewMirror(client LedgerClient) *Mirror {
	return &Mirror{client: client}
}

// Key packs piiHash into the 32-byte Keccak-256 form the contract indexes by.
func Key(piiHash string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(piiHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Function returns the contract function that records a move to status.
func Function(status models.DeliveryStatus) (string, error) {
	fn, ok := functions[status]
	if !ok {
		return "", fault.ErrInvalidStatus
	}
	return fn, nil
}

// Write builds the ledger write for a delivery entering status.
func Write(piiHash string, status models.DeliveryStatus) (*models.LedgerWrite, error) {
	if piiHash == "" {
		return nil, fault.ErrMissingPIIHash
	}
	fn, err := Function(status)
	if err != nil {
		return nil, err
	}
	return &models.LedgerWrite{Function: fn, Key: Key(piiHash), Status: status}, nil
}

// Submit sends w to the ledger.
func (m *Mirror) Submit(ctx context.Context, w models.LedgerWrite) (Receipt, error) {
	if m == nil || m.client == nil {
		return Receipt{}, fault.ErrLedgerUnavailable
	}

	start := time.Now()
	txID, block, err := m.client.Submit(ctx, w.Function, w.Key)
	metrics.LedgerSubmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("Ledger %s for key %s failed: %v", w.Function, w.Key, err)
		return Receipt{}, fmt.Errorf("%w: %v", fault.ErrLedgerWrite, err)
	}
	return Receipt{TxHash: txID, BlockNumber: block}, nil
}

// Status reads the ledger record mirrored for piiHash.
func (m *Mirror) Status(ctx context.Context, piiHash string) (*Record, error) {
	if m == nil || m.client == nil {
		return nil, fault.ErrLedgerUnavailable
	}
	if piiHash == "" {
		return nil, fault.ErrMissingPIIHash
	}

	key := Key(piiHash)
	raw, err := m.client.Evaluate(ctx, getDelivery, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrLedgerRead, err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrLedgerRead, err)
	}
	if record.Key == "" {
		record.Key = key
	}
	return &record, nil
}
