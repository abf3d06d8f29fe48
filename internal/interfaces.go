package internal

import "context"

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}

// TransferEngine moves a remote resource into a local file
type TransferEngine interface {
	Transfer(ctx context.Context, source *TransferSource, config *TransferConfig) error
}
