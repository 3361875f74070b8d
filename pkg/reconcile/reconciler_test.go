// pkg/reconcile/reconciler_test.go

package reconcile_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amareque/challenge-senior-engineer/pkg/reconcile"
	"github.com/amareque/challenge-senior-engineer/pkg/remote"
	"github.com/amareque/challenge-senior-engineer/pkg/store"
)

// fakeRemote serves a canned snapshot. The reconciler only ever fetches and
// deletes; the other methods exist to satisfy the interface.
type fakeRemote struct {
	mu           sync.Mutex
	lists        []remote.RemoteList
	fetchErr     error
	fetchCalls   int
	fetchStarted chan struct{}
	fetchGate    chan struct{}
	deletedLists []string
	deleteErrs   map[string]error
}

func (f *fakeRemote) FetchLists(ctx context.Context) ([]remote.RemoteList, error) {
	f.mu.Lock()
	f.fetchCalls++
	started := f.fetchStarted
	gate := f.fetchGate
	fetchErr := f.fetchErr
	lists := append([]remote.RemoteList(nil), f.lists...)
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return lists, nil
}

func (f *fakeRemote) DeleteList(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErrs[externalID]; err != nil {
		return err
	}
	f.deletedLists = append(f.deletedLists, externalID)
	return nil
}

func (f *fakeRemote) CreateList(ctx context.Context, payload remote.ListPayload) (*remote.RemoteList, error) {
	return nil, nil
}

func (f *fakeRemote) UpdateList(ctx context.Context, externalID, name string) error { return nil }

func (f *fakeRemote) UpdateItem(ctx context.Context, listExternalID, itemExternalID, description string, completed bool) error {
	return nil
}

func (f *fakeRemote) DeleteItem(ctx context.Context, listExternalID, itemExternalID string) error {
	return nil
}

func remoteItem(id, sourceID, description string, completed bool) remote.RemoteItem {
	return remote.RemoteItem{ID: id, SourceID: sourceID, Description: description, Completed: completed}
}

func TestReconciler_AdoptsRemoteOriginatedLists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	rem := &fakeRemote{lists: []remote.RemoteList{
		{
			ID:   "ext-9",
			Name: "Remote only",
			Items: []remote.RemoteItem{
				remoteItem("ext-90", "", "From remote", true),
			},
		},
	}}
	rec := reconcile.NewReconciler(st, rem)

	require.NoError(t, rec.Run(ctx))

	lists, err := st.ListsWithItems(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	require.NotNil(t, lists[0].ExternalID)
	assert.Equal(t, "ext-9", *lists[0].ExternalID)
	assert.Equal(t, "Remote only", lists[0].Name)
	require.Len(t, lists[0].Items, 1)
	assert.Equal(t, "From remote", lists[0].Items[0].Title)
	assert.True(t, lists[0].Items[0].Completed)

	// A second pass must recognize the adopted list instead of duplicating it.
	require.NoError(t, rec.Run(ctx))
	lists, err = st.ListsWithItems(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 1)
	assert.Len(t, lists[0].Items, 1)
}

func TestReconciler_DeletesRemoteForVanishedLocal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// One surviving local list and one remote list whose source id points
	// at a local record that no longer exists.
	alive := &store.List{Name: "Alive"}
	require.NoError(t, st.CreateList(ctx, alive))
	require.NoError(t, st.SetListExternalID(ctx, alive.ID, "ext-alive", false))

	rem := &fakeRemote{lists: []remote.RemoteList{
		{ID: "ext-alive", SourceID: "1", Name: "Alive", Items: []remote.RemoteItem{}},
		{ID: "ext-gone", SourceID: "999", Name: "Gone", Items: []remote.RemoteItem{}},
	}}
	rec := reconcile.NewReconciler(st, rem)

	require.NoError(t, rec.Run(ctx))

	assert.Equal(t, []string{"ext-gone"}, rem.deletedLists)

	// No other record was touched.
	lists, err := st.ListsWithItems(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Alive", lists[0].Name)
}

func TestReconciler_RepairsExternalIDDrift(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		prior string
	}{
		{name: "lost create response leaves mapping empty"},
		{name: "stale mapping is overwritten", prior: "ext-stale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			list := &store.List{Name: "Groceries"}
			require.NoError(t, st.CreateList(ctx, list))
			if tt.prior != "" {
				require.NoError(t, st.SetListExternalID(ctx, list.ID, tt.prior, false))
			}

			rem := &fakeRemote{lists: []remote.RemoteList{
				{ID: "ext-1", SourceID: "1", Name: "Groceries", Items: []remote.RemoteItem{}},
			}}
			require.NoError(t, reconcile.NewReconciler(st, rem).Run(ctx))

			got, err := st.GetList(ctx, list.ID)
			require.NoError(t, err)
			require.NotNil(t, got.ExternalID)
			assert.Equal(t, "ext-1", *got.ExternalID, "the remote id is authoritative")
		})
	}
}

func TestReconciler_RemoteWinsFieldDiffs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	list := &store.List{Name: "Old name"}
	require.NoError(t, st.CreateList(ctx, list))
	require.NoError(t, st.SetListExternalID(ctx, list.ID, "ext-1", false))
	item := &store.Item{Title: "Old title", ListID: list.ID}
	require.NoError(t, st.CreateItem(ctx, item))
	require.NoError(t, st.SetItemExternalID(ctx, item.ID, "ext-10", false))

	rem := &fakeRemote{lists: []remote.RemoteList{
		{
			ID:       "ext-1",
			SourceID: "1",
			Name:     "New name",
			Items: []remote.RemoteItem{
				remoteItem("ext-10", "2", "New title", true),
			},
		},
	}}
	require.NoError(t, reconcile.NewReconciler(st, rem).Run(ctx))

	gotList, err := st.GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "New name", gotList.Name)

	gotItem, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "New title", gotItem.Title)
	assert.True(t, gotItem.Completed)
}

func TestReconciler_CreatesMissingLocalItems(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	list := &store.List{Name: "Groceries"}
	require.NoError(t, st.CreateList(ctx, list))
	require.NoError(t, st.SetListExternalID(ctx, list.ID, "ext-1", false))

	rem := &fakeRemote{lists: []remote.RemoteList{
		{
			ID:       "ext-1",
			SourceID: "1",
			Name:     "Groceries",
			Items: []remote.RemoteItem{
				remoteItem("ext-11", "", "Added remotely", false),
			},
		},
	}}
	require.NoError(t, reconcile.NewReconciler(st, rem).Run(ctx))

	got, err := st.GetListWithItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Added remotely", got.Items[0].Title)
	require.NotNil(t, got.Items[0].ExternalID)
	assert.Equal(t, "ext-11", *got.Items[0].ExternalID)
}

func TestReconciler_RepairsItemMappingBySourceID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	list := &store.List{Name: "Groceries"}
	require.NoError(t, st.CreateList(ctx, list))
	require.NoError(t, st.SetListExternalID(ctx, list.ID, "ext-1", false))
	// The item was pushed in a bundled create whose response was lost, so
	// it has no mapping locally; the snapshot still echoes its source id.
	item := &store.Item{Title: "Milk", ListID: list.ID}
	require.NoError(t, st.CreateItem(ctx, item))

	rem := &fakeRemote{lists: []remote.RemoteList{
		{
			ID:       "ext-1",
			SourceID: "1",
			Name:     "Groceries",
			Items: []remote.RemoteItem{
				remoteItem("ext-2", "2", "Milk", false),
			},
		},
	}}
	require.NoError(t, reconcile.NewReconciler(st, rem).Run(ctx))

	got, err := st.GetListWithItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1, "the row is repaired, not duplicated")
	require.NotNil(t, got.Items[0].ExternalID)
	assert.Equal(t, "ext-2", *got.Items[0].ExternalID)
}

func TestReconciler_KeepsLocalItemsMissingRemotely(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	list := &store.List{Name: "Groceries"}
	require.NoError(t, st.CreateList(ctx, list))
	require.NoError(t, st.SetListExternalID(ctx, list.ID, "ext-1", false))
	item := &store.Item{Title: "Milk", ListID: list.ID}
	require.NoError(t, st.CreateItem(ctx, item))
	require.NoError(t, st.SetItemExternalID(ctx, item.ID, "ext-10", false))

	rem := &fakeRemote{lists: []remote.RemoteList{
		{ID: "ext-1", SourceID: "1", Name: "Groceries", Items: []remote.RemoteItem{}},
	}}
	require.NoError(t, reconcile.NewReconciler(st, rem).Run(ctx))

	_, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err, "divergence is flagged, never deleted")
}

func TestReconciler_SnapshotFailureIsFatal(t *testing.T) {
	st := store.NewMemory()
	rem := &fakeRemote{fetchErr: assert.AnError}

	err := reconcile.NewReconciler(st, rem).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestReconciler_ContinuesPastDeleteFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	rem := &fakeRemote{
		lists: []remote.RemoteList{
			{ID: "ext-a", SourceID: "100", Name: "A", Items: []remote.RemoteItem{}},
			{ID: "ext-b", SourceID: "200", Name: "B", Items: []remote.RemoteItem{}},
		},
		deleteErrs: map[string]error{"ext-a": assert.AnError},
	}

	err := reconcile.NewReconciler(st, rem).Run(ctx)
	require.Error(t, err, "the failed delete surfaces in the pass result")
	assert.Equal(t, []string{"ext-b"}, rem.deletedLists, "one failure must not stop the rest of the batch")
}

func TestScheduler_RunOnce_SingleFlight(t *testing.T) {
	st := store.NewMemory()
	rem := &fakeRemote{
		fetchStarted: make(chan struct{}, 1),
		fetchGate:    make(chan struct{}),
	}
	sched := reconcile.NewScheduler(reconcile.NewReconciler(st, rem), 0, 0)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- sched.RunOnce(context.Background())
	}()
	<-rem.fetchStarted

	err := sched.RunOnce(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrPassRunning)

	close(rem.fetchGate)
	require.NoError(t, <-firstDone)
}
