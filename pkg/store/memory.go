// pkg/store/memory.go

package store

import (
	"context"
	"sort"
	"sync"

	cerr "github.com/cockroachdb/errors"

	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

// Memory is a map-backed Store with the same semantics as Gorm. It backs the
// engine tests so they run without Postgres.
type Memory struct {
	mu     sync.Mutex
	lists  map[uint]*List
	items  map[uint]*Item
	nextID uint

	lockMu    sync.Mutex
	listLocks map[uint]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		lists:     make(map[uint]*List),
		items:     make(map[uint]*Item),
		nextID:    1,
		listLocks: make(map[uint]*sync.Mutex),
	}
}

func (m *Memory) allocID() uint {
	id := m.nextID
	m.nextID++
	return id
}

func copyList(l *List) *List {
	out := *l
	out.Items = nil
	return &out
}

func copyItem(i *Item) *Item {
	out := *i
	return &out
}

func (m *Memory) itemsOf(listID uint) []Item {
	var out []Item
	for _, it := range m.items {
		if it.ListID == listID {
			out = append(out, *copyItem(it))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (m *Memory) CreateList(ctx context.Context, list *List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list.ID == 0 {
		list.ID = m.allocID()
	}
	stored := copyList(list)
	m.lists[list.ID] = stored
	for idx := range list.Items {
		it := &list.Items[idx]
		if it.ID == 0 {
			it.ID = m.allocID()
		}
		it.ListID = list.ID
		m.items[it.ID] = copyItem(it)
	}
	return nil
}

func (m *Memory) GetList(ctx context.Context, id uint) (*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, syncerr.NotFoundf("list %d", id)
	}
	return copyList(l), nil
}

func (m *Memory) GetListWithItems(ctx context.Context, id uint) (*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, syncerr.NotFoundf("list %d", id)
	}
	out := copyList(l)
	out.Items = m.itemsOf(id)
	return out, nil
}

func (m *Memory) ListsWithItems(ctx context.Context) ([]List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []List
	for _, l := range m.lists {
		entry := copyList(l)
		entry.Items = m.itemsOf(l.ID)
		out = append(out, *entry)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *Memory) UpdateListName(ctx context.Context, id uint, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return syncerr.NotFoundf("list %d", id)
	}
	l.Name = name
	return nil
}

func (m *Memory) SetListExternalID(ctx context.Context, id uint, externalID string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return syncerr.NotFoundf("list %d", id)
	}
	if l.ExternalID != nil {
		if *l.ExternalID == externalID {
			return nil
		}
		if !force {
			return cerr.Newf("list %d external id already set to %q", id, *l.ExternalID)
		}
	}
	ext := externalID
	l.ExternalID = &ext
	return nil
}

func (m *Memory) DeleteList(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[id]; !ok {
		return syncerr.NotFoundf("list %d", id)
	}
	delete(m.lists, id)
	for itemID, it := range m.items {
		if it.ListID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *Memory) CreateItem(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		item.ID = m.allocID()
	}
	m.items[item.ID] = copyItem(item)
	return nil
}

func (m *Memory) GetItem(ctx context.Context, id uint) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, syncerr.NotFoundf("item %d", id)
	}
	return copyItem(it), nil
}

func (m *Memory) UpdateItem(ctx context.Context, id uint, title string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return syncerr.NotFoundf("item %d", id)
	}
	it.Title = title
	it.Completed = completed
	return nil
}

func (m *Memory) SetItemExternalID(ctx context.Context, id uint, externalID string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return syncerr.NotFoundf("item %d", id)
	}
	if it.ExternalID != nil {
		if *it.ExternalID == externalID {
			return nil
		}
		if !force {
			return cerr.Newf("item %d external id already set to %q", id, *it.ExternalID)
		}
	}
	ext := externalID
	it.ExternalID = &ext
	return nil
}

func (m *Memory) DeleteItem(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return syncerr.NotFoundf("item %d", id)
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) WithListLock(ctx context.Context, listID uint, fn func(ctx context.Context) error) error {
	m.lockMu.Lock()
	lock, ok := m.listLocks[listID]
	if !ok {
		lock = &sync.Mutex{}
		m.listLocks[listID] = lock
	}
	m.lockMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
