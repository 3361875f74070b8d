// pkg/api/server.go

// Package api is the HTTP surface that produces local mutations. Every
// successful mutation commits to the store first and then publishes a change
// event; a publish failure is logged but never fails the request, since the
// local write already happened and the reconciler closes the gap.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/events"
	"github.com/amareque/challenge-senior-engineer/pkg/store"
	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

// Server exposes the list/item CRUD API.
type Server struct {
	store     store.Store
	publisher events.Publisher
	router    *mux.Router
	logger    *zap.Logger
}

// NewServer wires the routes over the given store and event publisher.
func NewServer(st store.Store, pub events.Publisher) *Server {
	s := &Server{
		store:     st,
		publisher: pub,
		router:    mux.NewRouter(),
		logger:    zap.L().Named("api"),
	}
	s.routes()
	return s
}

// Router returns the HTTP handler for mounting in a server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/lists", s.handleCreateList).Methods(http.MethodPost)
	s.router.HandleFunc("/lists", s.handleGetLists).Methods(http.MethodGet)
	s.router.HandleFunc("/lists/{id:[0-9]+}", s.handleGetList).Methods(http.MethodGet)
	s.router.HandleFunc("/lists/{id:[0-9]+}", s.handleUpdateList).Methods(http.MethodPatch)
	s.router.HandleFunc("/lists/{id:[0-9]+}", s.handleDeleteList).Methods(http.MethodDelete)

	s.router.HandleFunc("/lists/{id:[0-9]+}/items", s.handleCreateItem).Methods(http.MethodPost)
	s.router.HandleFunc("/lists/{id:[0-9]+}/items/{itemID:[0-9]+}", s.handleUpdateItem).Methods(http.MethodPatch)
	s.router.HandleFunc("/lists/{id:[0-9]+}/items/{itemID:[0-9]+}", s.handleDeleteItem).Methods(http.MethodDelete)
}

type createListRequest struct {
	Name  string              `json:"name"`
	Items []createItemRequest `json:"items"`
}

type createItemRequest struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type updateListRequest struct {
	Name string `json:"name"`
}

type updateItemRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, it := range req.Items {
		if it.Title == "" {
			writeError(w, http.StatusBadRequest, "item title is required")
			return
		}
	}

	ctx := r.Context()
	list := &store.List{Name: req.Name}
	if err := s.store.CreateList(ctx, list); err != nil {
		s.respondError(w, r, err)
		return
	}
	for _, it := range req.Items {
		item := &store.Item{Title: it.Title, Completed: it.Completed, ListID: list.ID}
		if err := s.store.CreateItem(ctx, item); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	created, err := s.store.GetListWithItems(ctx, list.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// One bundled create is one logical mutation: the list event alone is
	// enough, its handler pushes the items along with the list.
	s.publish(ctx, events.NewListEvent(events.ListCreated, list.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.store.ListsWithItems(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	list, err := s.store.GetListWithItems(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var req updateListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx := r.Context()
	id := pathID(r, "id")
	if err := s.store.UpdateListName(ctx, id, req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	list, err := s.store.GetListWithItems(ctx, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(ctx, events.NewListEvent(events.ListUpdated, id))
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := pathID(r, "id")

	// Capture the identity mapping before the row goes away, the deletion
	// event is its last carrier.
	list, err := s.store.GetList(ctx, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.DeleteList(ctx, id); err != nil {
		s.respondError(w, r, err)
		return
	}

	externalID := ""
	if list.ExternalID != nil {
		externalID = *list.ExternalID
	}
	// Items die with the list on both sides, so their own deletion events
	// are not emitted; the remote cascade removes them along with the list.
	s.publish(ctx, events.NewListDeletedEvent(id, externalID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	ctx := r.Context()
	listID := pathID(r, "id")
	if _, err := s.store.GetList(ctx, listID); err != nil {
		s.respondError(w, r, err)
		return
	}

	item := &store.Item{Title: req.Title, Completed: req.Completed, ListID: listID}
	if err := s.store.CreateItem(ctx, item); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(ctx, events.NewItemEvent(events.ItemCreated, item.ID, listID))
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == nil && req.Completed == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.Title != nil && *req.Title == "" {
		writeError(w, http.StatusBadRequest, "title cannot be empty")
		return
	}

	ctx := r.Context()
	listID := pathID(r, "id")
	itemID := pathID(r, "itemID")

	item, err := s.itemInList(r, listID, itemID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	title := item.Title
	completed := item.Completed
	if req.Title != nil {
		title = *req.Title
	}
	if req.Completed != nil {
		completed = *req.Completed
	}
	if err := s.store.UpdateItem(ctx, itemID, title, completed); err != nil {
		s.respondError(w, r, err)
		return
	}
	updated, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(ctx, events.NewItemEvent(events.ItemUpdated, itemID, listID))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listID := pathID(r, "id")
	itemID := pathID(r, "itemID")

	item, err := s.itemInList(r, listID, itemID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		s.respondError(w, r, err)
		return
	}

	externalID := ""
	if item.ExternalID != nil {
		externalID = *item.ExternalID
	}
	s.publish(ctx, events.NewItemDeletedEvent(itemID, listID, externalID))
	w.WriteHeader(http.StatusNoContent)
}

// itemInList loads an item and checks it belongs to the list in the path, so
// /lists/1/items/9 cannot address list 2's item.
func (s *Server) itemInList(r *http.Request, listID, itemID uint) (*store.Item, error) {
	item, err := s.store.GetItem(r.Context(), itemID)
	if err != nil {
		return nil, err
	}
	if item.ListID != listID {
		return nil, syncerr.NotFoundf("item %d not in list %d", itemID, listID)
	}
	return item, nil
}

func (s *Server) publish(ctx context.Context, event events.ChangeEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		// The local write is already committed; a lost event only delays
		// convergence until the next reconciliation pass.
		otelzap.Ctx(ctx).Error("Failed to publish change event",
			zap.String("kind", string(event.Kind)),
			zap.Uint("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case syncerr.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		otelzap.Ctx(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, key string) uint {
	// Route patterns constrain these to digits.
	id, _ := strconv.ParseUint(mux.Vars(r)[key], 10, 64)
	return uint(id)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
