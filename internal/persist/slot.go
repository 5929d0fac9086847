// ABOUTME: Slot interface for the single durable key-value entry holding conversations
// ABOUTME: Implementations: SQLite-backed slot and a plain JSON file slot

package persist

import (
	"context"
	"errors"
)

// DefaultSlotName is the fixed key under which the conversation snapshot is
// stored.
const DefaultSlotName = "chat_conversations"

// ErrSlotEmpty is returned by Load when nothing has been saved yet. Callers
// treat it as "start with an empty store", not as a failure.
var ErrSlotEmpty = errors.New("slot is empty")

// Slot is one named durable key-value entry. The value is opaque to the slot;
// the Repository owns the serialization format.
type Slot interface {
	Save(ctx context.Context, value []byte) error
	Load(ctx context.Context) ([]byte, error)
	Close() error
}
