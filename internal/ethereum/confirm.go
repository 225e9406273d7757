package ethereum

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval is how often WaitMined asks the node for a receipt.
const DefaultPollInterval = 3 * time.Second

// WaitMined polls until txHash has a receipt with at least confirmations
// blocks on top of it (confirmations <= 1 means the including block
// itself). The caller bounds the wait through ctx.
func WaitMined(ctx context.Context, client Client, txHash string, confirmations uint64, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if confirmations <= 1 {
				return receipt, nil
			}
			head, err := client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetch block number: %w", err)
			}
			if head >= receipt.BlockNumber+confirmations-1 {
				return receipt, nil
			}
		case errors.Is(err, ErrReceiptNotFound):
			// still pending
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
