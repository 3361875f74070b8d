// pkg/events/events_test.go

package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amareque/challenge-senior-engineer/pkg/events"
)

func TestNewListEvent(t *testing.T) {
	ev := events.NewListEvent(events.ListUpdated, 3)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, events.ListUpdated, ev.Kind)
	assert.Equal(t, uint(3), ev.EntityID)
	assert.Equal(t, uint(3), ev.ListID)
	assert.Equal(t, uint(3), ev.AggregateID())
	assert.False(t, ev.EmittedAt.IsZero())
}

func TestNewItemEvent(t *testing.T) {
	ev := events.NewItemEvent(events.ItemCreated, 10, 3)

	assert.Equal(t, uint(10), ev.EntityID)
	assert.Equal(t, uint(3), ev.ListID)
	assert.Equal(t, uint(3), ev.AggregateID(), "item events lock on the owning list")
}

func TestDeletionEventsCarryExternalID(t *testing.T) {
	listEv := events.NewListDeletedEvent(3, "ext-3")
	assert.Equal(t, events.ListDeleted, listEv.Kind)
	assert.Equal(t, "ext-3", listEv.ExternalID)

	itemEv := events.NewItemDeletedEvent(10, 3, "ext-10")
	assert.Equal(t, events.ItemDeleted, itemEv.Kind)
	assert.Equal(t, "ext-10", itemEv.ExternalID)
	assert.Equal(t, uint(3), itemEv.AggregateID())

	unsynced := events.NewListDeletedEvent(4, "")
	assert.Empty(t, unsynced.ExternalID)
}
