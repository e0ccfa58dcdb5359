package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/captals/primechain/internal/chain"
)

// EventBlockAppended is the type of every event the ledger emits.
const EventBlockAppended = "block.appended"

// Event is delivered to subscribers. ID is stable across retries so
// receivers can deduplicate at-least-once deliveries.
type Event struct {
	ID        uuid.UUID           `json:"id"`
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Block     chain.BlockAppended `json:"block"`
}

// SubscriberStatus is a point-in-time view of one subscriber's queue.
type SubscriberStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Failures  uint64 `json:"failures"`
}
