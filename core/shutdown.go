package core

import (
	"context"
)

// ShutdownFunc releases one resource during graceful shutdown. The context
// carries the remaining shutdown budget. Implementations must be safe to call
// more than once.
type ShutdownFunc func(ctx context.Context) error
