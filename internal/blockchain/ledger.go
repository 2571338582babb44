// internal/blockchain/ledger.go
package blockchain

import (
	"context"
	"fmt"
)

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks property-delivery-api-server/internal/blockchain LedgerClient

// LedgerClient is the narrow contract surface the mirror needs.
type LedgerClient interface {
	// Submit invokes fn and waits for the commit, returning the transaction id and
	// the block it was committed in.
	Submit(ctx context.Context, fn string, args ...string) (txID string, blockNumber uint64, err error)
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
}

var _ LedgerClient = (*FabricSetup)(nil)

func (fs *FabricSetup) Submit(ctx context.Context, fn string, args ...string) (string, uint64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	txn, err := fs.Contract.CreateTransaction(fn)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create transaction %s: %w", fn, err)
	}
	commit := txn.RegisterCommitEvent()

	if _, err := txn.Submit(args...); err != nil {
		return "", 0, fmt.Errorf("failed to submit transaction %s: %w", fn, err)
	}

	// Submit only returns once the commit handler has seen the event
	select {
	case event := <-commit:
		return event.TxID, event.BlockNumber, nil
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}

func (fs *FabricSetup) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := fs.Contract.EvaluateTransaction(fn, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate transaction %s: %w", fn, err)
	}
	return result, nil
}
