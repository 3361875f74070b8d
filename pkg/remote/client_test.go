// pkg/remote/client_test.go

package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amareque/challenge-senior-engineer/pkg/remote"
	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

func newTestClient(url string) *remote.Client {
	return remote.NewClient(remote.Config{BaseURL: url})
}

func TestClient_CreateList(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody remote.ListPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "ext-1",
			"items": []map[string]interface{}{
				{"id": "ext-10", "source_id": "10", "description": "Milk", "completed": false},
			},
		})
	}))
	defer srv.Close()

	created, err := newTestClient(srv.URL).CreateList(context.Background(), remote.ListPayload{
		SourceID: "1",
		Name:     "Groceries",
		Items: []remote.ItemPayload{
			{SourceID: "10", Description: "Milk"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/lists", gotPath)
	assert.Equal(t, "1", gotBody.SourceID)
	assert.Equal(t, "Groceries", gotBody.Name)
	require.Len(t, gotBody.Items, 1)
	assert.Equal(t, "10", gotBody.Items[0].SourceID)

	assert.Equal(t, "ext-1", created.ID)
	require.NotNil(t, created.ItemBySourceID("10"))
	assert.Equal(t, "ext-10", created.ItemBySourceID("10").ID)
}

func TestClient_CreateList_EmptyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		items, ok := body["items"].([]interface{})
		require.True(t, ok, "items must be a JSON array even when empty")
		assert.Empty(t, items)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"ext-1","items":[]}`))
	}))
	defer srv.Close()

	created, err := newTestClient(srv.URL).CreateList(context.Background(), remote.ListPayload{
		SourceID: "1",
		Name:     "Groceries",
		Items:    []remote.ItemPayload{},
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", created.ID)
	assert.NotNil(t, created.Items)
}

func TestClient_CreateList_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"name taken"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateList(context.Background(), remote.ListPayload{SourceID: "1", Name: "x"})
	require.Error(t, err)
	assert.True(t, syncerr.IsRemoteRejected(err))
}

func TestClient_UpdateList(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UpdateList(context.Background(), "ext-1", "Errands")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/lists/ext-1", gotPath)
	assert.Equal(t, map[string]string{"name": "Errands"}, gotBody)
}

func TestClient_UpdateItem(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UpdateItem(context.Background(), "ext-1", "ext-10", "Oat milk", true)
	require.NoError(t, err)
	assert.Equal(t, "/lists/ext-1/items/ext-10", gotPath)
	assert.Equal(t, "Oat milk", gotBody["description"])
	assert.Equal(t, true, gotBody["completed"])
}

func TestClient_Deletes_TreatNotFoundAsSuccess(t *testing.T) {
	tests := []struct {
		name   string
		status int
		call   func(c *remote.Client) error
		ok     bool
	}{
		{
			name:   "delete list 404",
			status: http.StatusNotFound,
			call:   func(c *remote.Client) error { return c.DeleteList(context.Background(), "ext-1") },
			ok:     true,
		},
		{
			name:   "delete list 204",
			status: http.StatusNoContent,
			call:   func(c *remote.Client) error { return c.DeleteList(context.Background(), "ext-1") },
			ok:     true,
		},
		{
			name:   "delete item 404",
			status: http.StatusNotFound,
			call:   func(c *remote.Client) error { return c.DeleteItem(context.Background(), "ext-1", "ext-10") },
			ok:     true,
		},
		{
			name:   "delete list 403 is rejected",
			status: http.StatusForbidden,
			call:   func(c *remote.Client) error { return c.DeleteList(context.Background(), "ext-1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := tt.call(newTestClient(srv.URL))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, syncerr.IsRemoteRejected(err))
			}
		})
	}
}

func TestClient_FetchLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/lists", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"ext-1","source_id":"1","name":"Groceries","items":[
				{"id":"ext-10","source_id":"10","description":"Milk","completed":true}
			]},
			{"id":"ext-2","source_id":"","name":"Remote only","items":[]}
		]`))
	}))
	defer srv.Close()

	lists, err := newTestClient(srv.URL).FetchLists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "ext-1", lists[0].ID)
	assert.Equal(t, "1", lists[0].SourceID)
	require.Len(t, lists[0].Items, 1)
	assert.True(t, lists[0].Items[0].Completed)
	assert.Empty(t, lists[1].SourceID)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	_, err := newTestClient(srv.URL).FetchLists(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.IsRemoteUnavailable(err))
}

func TestClient_BreakerTripsOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	// Six consecutive 5xx responses open the breaker.
	for i := 0; i < 6; i++ {
		err := client.DeleteList(context.Background(), "ext-1")
		require.Error(t, err)
		assert.True(t, syncerr.IsRemoteRejected(err), "call %d should reach the server", i)
	}

	err := client.DeleteList(context.Background(), "ext-1")
	require.Error(t, err)
	assert.True(t, syncerr.IsRemoteUnavailable(err), "open breaker reports the remote as unavailable")
	assert.EqualValues(t, 6, atomic.LoadInt32(&hits), "open breaker must not hit the server")
}
