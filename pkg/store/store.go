// pkg/store/store.go

// Package store owns the local relational representation of lists and items
// and the access layer both synchronizers go through. The engine only sees
// the Store interface; Gorm is the Postgres-backed implementation and Memory
// the map-backed one used in tests.
package store

import (
	"context"
)

// Store is the persistence surface consumed by the API and the sync engine.
// All methods are safe for concurrent use.
type Store interface {
	CreateList(ctx context.Context, list *List) error
	GetList(ctx context.Context, id uint) (*List, error)
	GetListWithItems(ctx context.Context, id uint) (*List, error)
	ListsWithItems(ctx context.Context) ([]List, error)
	UpdateListName(ctx context.Context, id uint, name string) error
	// SetListExternalID records the remote identifier for a list. A non-nil
	// value is written exactly once; overwriting with a different value is
	// refused unless force is set (reconciler authority).
	SetListExternalID(ctx context.Context, id uint, externalID string, force bool) error
	DeleteList(ctx context.Context, id uint) error

	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id uint) (*Item, error)
	UpdateItem(ctx context.Context, id uint, title string, completed bool) error
	SetItemExternalID(ctx context.Context, id uint, externalID string, force bool) error
	DeleteItem(ctx context.Context, id uint) error

	// WithListLock runs fn inside a per-list critical section. Outbound
	// handlers and inbound per-list merges both take it, so concurrent
	// writes to one aggregate serialize instead of interleaving.
	WithListLock(ctx context.Context, listID uint, fn func(ctx context.Context) error) error

	Ping(ctx context.Context) error
}
