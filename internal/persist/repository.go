// ABOUTME: Repository serializes the conversation store to its durable slot
// ABOUTME: Load-on-init, save-on-mutation; the lifecycle is explicit, not a UI hook

package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/halcyonware/support-widget/internal/store"
)

// Repository owns the snapshot format: a JSON array of conversations, with
// timestamp, createdAt and updatedAt serialized as RFC 3339 strings and
// revived into instants on load. Fields with other names pass through
// untouched, so a date-shaped string inside message content stays a string.
type Repository struct {
	slot   Slot
	logger *slog.Logger
}

// NewRepository wires a repository to its slot.
func NewRepository(slot Slot, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		slot:   slot,
		logger: logger.With("component", "persist"),
	}
}

// Save serializes the full snapshot and writes it to the slot. Saves are
// whole-store, not incremental, so snapshot size bounds save cost.
func (r *Repository) Save(ctx context.Context, snapshot []*store.Conversation) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := r.slot.Save(ctx, data); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	r.logger.Debug("snapshot saved", "conversations", len(snapshot), "bytes", len(data))
	return nil
}

// Load reads and decodes the snapshot. An empty slot yields an empty
// snapshot. A corrupted slot also yields an empty snapshot, with a warning:
// a support widget must come up rather than refuse to start over stale state.
func (r *Repository) Load(ctx context.Context) ([]*store.Conversation, error) {
	data, err := r.slot.Load(ctx)
	if errors.Is(err, ErrSlotEmpty) {
		return []*store.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot []*store.Conversation
	if err := json.Unmarshal(data, &snapshot); err != nil {
		r.logger.Warn("persisted conversations unreadable, starting empty", "error", err)
		return []*store.Conversation{}, nil
	}
	if snapshot == nil {
		snapshot = []*store.Conversation{}
	}
	r.logger.Debug("snapshot loaded", "conversations", len(snapshot))
	return snapshot, nil
}

// Close releases the underlying slot.
func (r *Repository) Close() error {
	return r.slot.Close()
}
