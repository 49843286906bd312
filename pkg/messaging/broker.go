package messaging

import (
	"context"
)

// Broker mirrors run summaries to downstream consumers. Publishing is
// best-effort; callers treat errors as log-and-continue.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
