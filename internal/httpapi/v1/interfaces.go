package v1

import "context"

// ReadyChecker is implemented by stores that can verify connectivity.
// The memory store does not implement it and is always considered ready.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
