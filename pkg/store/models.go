// pkg/store/models.go

package store

import (
	"time"
)

// List is the aggregate root: a named collection of items. ExternalID is the
// remote system's identifier, nil until the list has been pushed outward.
// Once set it never changes, except when inbound reconciliation adopts the
// value the remote snapshot reports as authoritative.
type List struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID *string   `gorm:"uniqueIndex" json:"external_id,omitempty"`
	Name       string    `gorm:"not null" json:"name"`
	Items      []Item    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Item is a single task belonging to exactly one list. Title carries the
// item's text; the remote wire format calls the same field "description".
type Item struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID *string   `gorm:"index" json:"external_id,omitempty"`
	Title      string    `gorm:"not null" json:"title"`
	Completed  bool      `gorm:"not null;default:false" json:"completed"`
	ListID     uint      `gorm:"index;not null" json:"list_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Synced reports whether the list has a remote counterpart.
func (l *List) Synced() bool { return l.ExternalID != nil }

// Synced reports whether the item has a remote counterpart.
func (i *Item) Synced() bool { return i.ExternalID != nil }

// ItemByID returns the list's item with the given local id, or nil.
func (l *List) ItemByID(id uint) *Item {
	for idx := range l.Items {
		if l.Items[idx].ID == id {
			return &l.Items[idx]
		}
	}
	return nil
}

// ItemByExternalID returns the list's item with the given remote id, or nil.
func (l *List) ItemByExternalID(externalID string) *Item {
	for idx := range l.Items {
		if l.Items[idx].ExternalID != nil && *l.Items[idx].ExternalID == externalID {
			return &l.Items[idx]
		}
	}
	return nil
}
