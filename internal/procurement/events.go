package procurement

import (
	"context"
	"time"
)

// Event entities.
const (
	EntityRequisition = "requisition"
	EntityQueueItem   = "queue_item"
	EntityForecast    = "forecast"
)

// TransitionEvent describes a committed workflow change.
type TransitionEvent struct {
	Entity string
	ID     string
	Action string
	From   string
	To     string
	At     time.Time
}

// EventHandler receives committed transitions, e.g. for metrics.
type EventHandler interface {
	HandleTransition(ctx context.Context, evt TransitionEvent) error
}
