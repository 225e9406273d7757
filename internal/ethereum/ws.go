package ethereum

import "context"

// WSClient defines the Ethereum WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to contract logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan Log, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogFilter selects which logs a subscription receives.
type LogFilter struct {
	// Address restricts logs to one contract. Empty matches all.
	Address string

	// Topics filters on indexed event parameters, position by position.
	// An empty string at a position matches anything.
	Topics []string
}
