// pkg/events/events.go

package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind names one local mutation type.
type Kind string

const (
	ListCreated Kind = "list.created"
	ListUpdated Kind = "list.updated"
	ListDeleted Kind = "list.deleted"
	ItemCreated Kind = "item.created"
	ItemUpdated Kind = "item.updated"
	ItemDeleted Kind = "item.deleted"
)

// ChangeEvent is an immutable fact describing one local mutation. It carries
// no snapshot of the mutated data: by the time it is processed the record
// may have changed again or been deleted, so consumers re-read current state
// by id. ListID is set on item events (the owning list) and equals EntityID
// on list events. Deletion events are the one exception to re-read-by-id:
// the local row is already gone, so they carry the remote identity mapping
// that existed at deletion time in ExternalID.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	EntityID   uint      `json:"entity_id"`
	ListID     uint      `json:"list_id,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// NewListEvent builds a change event for a list mutation.
func NewListEvent(kind Kind, listID uint) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityID:  listID,
		ListID:    listID,
		EmittedAt: time.Now().UTC(),
	}
}

// NewItemEvent builds a change event for an item mutation. listID is the
// owning list, needed by consumers once the item row itself is gone.
func NewItemEvent(kind Kind, itemID, listID uint) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityID:  itemID,
		ListID:    listID,
		EmittedAt: time.Now().UTC(),
	}
}

// NewListDeletedEvent builds the deletion event for a list. externalID is the
// remote id the list had when it was removed, empty if it was never synced.
func NewListDeletedEvent(listID uint, externalID string) ChangeEvent {
	ev := NewListEvent(ListDeleted, listID)
	ev.ExternalID = externalID
	return ev
}

// NewItemDeletedEvent builds the deletion event for an item.
func NewItemDeletedEvent(itemID, listID uint, externalID string) ChangeEvent {
	ev := NewItemEvent(ItemDeleted, itemID, listID)
	ev.ExternalID = externalID
	return ev
}

// AggregateID is the list the event belongs to, the key handlers lock on.
func (e ChangeEvent) AggregateID() uint {
	if e.ListID != 0 {
		return e.ListID
	}
	return e.EntityID
}
