package task

import (
	"context"

	"github.com/phrazzld/imgbatch-api/internal/queue"
)

// ImageProcessor turns one input URL into a stored output reference.
// key names the output object and must be the same on every attempt for
// the same slot.
type ImageProcessor interface {
	Process(ctx context.Context, key string, rawURL string) (string, error)
}

// PayloadStore reads and releases uploaded batch payloads.
type PayloadStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DeliveryHandler processes a single queue delivery and settles it.
type DeliveryHandler interface {
	Handle(ctx context.Context, delivery queue.Delivery) error
}
