// pkg/reconcile/reconciler.go

// Package reconcile pulls the full remote snapshot on a timer and merges it
// into the local store. It is the correctness backstop for the whole engine:
// outbound pushes are best-effort and never retried, so any drift they leave
// behind must converge here. A pass is idempotent and safe to re-run from
// scratch; partial failure leaves some aggregates merged and the rest for
// the next tick.
package reconcile

import (
	"context"
	"strconv"

	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/amareque/challenge-senior-engineer/pkg/remote"
	"github.com/amareque/challenge-senior-engineer/pkg/store"
	"github.com/amareque/challenge-senior-engineer/pkg/syncerr"
)

// Reconciler merges one full remote snapshot into the local store.
type Reconciler struct {
	store  store.Store
	remote remote.API
}

// NewReconciler builds a Reconciler over the given store and remote gateway.
func NewReconciler(st store.Store, client remote.API) *Reconciler {
	return &Reconciler{store: st, remote: client}
}

// Run executes one reconciliation pass. A failure to fetch either snapshot
// is fatal to the pass; per-aggregate failures are accumulated and the pass
// continues, the next tick retries naturally.
//
// Remote lists come in two populations. Lists without a source identifier
// originated remotely: unseen ones are adopted into the local store, ones
// adopted on an earlier pass are merged like any synced pair. Lists with a
// source identifier were pushed from here: if the local record is gone the
// local delete is authoritative and the remote copy is removed, otherwise
// the pair is merged with the remote side winning every field diff.
func (r *Reconciler) Run(ctx context.Context) error {
	log := otelzap.Ctx(ctx)

	remoteLists, err := r.remote.FetchLists(ctx)
	if err != nil {
		return cerr.Wrap(err, "fetch remote snapshot")
	}
	locals, err := r.store.ListsWithItems(ctx)
	if err != nil {
		return cerr.Wrap(err, "fetch local lists")
	}

	localByID := make(map[uint]*store.List, len(locals))
	localByExternalID := make(map[string]*store.List, len(locals))
	for idx := range locals {
		l := &locals[idx]
		localByID[l.ID] = l
		if l.ExternalID != nil {
			localByExternalID[*l.ExternalID] = l
		}
	}

	var merr *multierror.Error
	adopted, merged, deleted, failures := 0, 0, 0, 0
	fail := func(err error) {
		merr = multierror.Append(merr, err)
		failures++
	}

	for idx := range remoteLists {
		if err := ctx.Err(); err != nil {
			fail(cerr.Wrap(err, "pass aborted"))
			break
		}

		rl := &remoteLists[idx]
		switch {
		case rl.SourceID == "":
			if local, ok := localByExternalID[rl.ID]; ok {
				if err := r.mergeList(ctx, local.ID, rl); err != nil {
					fail(err)
				} else {
					merged++
				}
				continue
			}
			if err := r.adoptRemoteList(ctx, rl); err != nil {
				fail(err)
			} else {
				adopted++
			}

		default:
			localID, err := parseSourceID(rl.SourceID)
			if err != nil {
				log.Warn("Skipping remote list with unparseable source id",
					zap.String("remote_id", rl.ID),
					zap.String("source_id", rl.SourceID))
				continue
			}
			if _, ok := localByID[localID]; !ok {
				if err := r.deleteRemoteList(ctx, rl, localID); err != nil {
					fail(err)
				} else {
					deleted++
				}
				continue
			}
			if err := r.mergeList(ctx, localID, rl); err != nil {
				fail(err)
			} else {
				merged++
			}
		}
	}

	log.Info("Reconciliation pass complete",
		zap.Int("remote_lists", len(remoteLists)),
		zap.Int("local_lists", len(locals)),
		zap.Int("merged", merged),
		zap.Int("adopted", adopted),
		zap.Int("remote_deletes", deleted),
		zap.Int("failures", failures))
	return merr.ErrorOrNil()
}

// adoptRemoteList brings a remote-originated list into the local store: a new
// local list carrying the remote id, plus one local item per remote item.
func (r *Reconciler) adoptRemoteList(ctx context.Context, rl *remote.RemoteList) error {
	externalID := rl.ID
	list := &store.List{Name: rl.Name, ExternalID: &externalID}
	if err := r.store.CreateList(ctx, list); err != nil {
		return cerr.Wrapf(err, "adopt remote list %s", rl.ID)
	}

	var merr *multierror.Error
	for _, ri := range rl.Items {
		itemExternalID := ri.ID
		item := &store.Item{
			Title:      ri.Description,
			Completed:  ri.Completed,
			ExternalID: &itemExternalID,
			ListID:     list.ID,
		}
		if err := r.store.CreateItem(ctx, item); err != nil {
			merr = multierror.Append(merr, cerr.Wrapf(err, "adopt remote item %s", ri.ID))
		}
	}

	otelzap.Ctx(ctx).Info("Adopted remote-originated list",
		zap.String("external_id", rl.ID),
		zap.Uint("list_id", list.ID),
		zap.Int("items", len(rl.Items)))
	return merr.ErrorOrNil()
}

// deleteRemoteList propagates a local deletion the outbound path missed. The
// remote copy still points at a local id that no longer exists, so the local
// delete is authoritative. Remote not-found is tolerated by the client.
func (r *Reconciler) deleteRemoteList(ctx context.Context, rl *remote.RemoteList, localID uint) error {
	if err := r.remote.DeleteList(ctx, rl.ID); err != nil {
		return cerr.Wrapf(err, "delete remote list %s for vanished list %d", rl.ID, localID)
	}
	otelzap.Ctx(ctx).Info("Deleted remote list for vanished local list",
		zap.String("external_id", rl.ID),
		zap.Uint("list_id", localID))
	return nil
}

// mergeList reconciles one remote/local pair inside the list's critical
// section, re-reading local state under the lock so it does not clobber a
// concurrent outbound handler's writes with the stale snapshot.
func (r *Reconciler) mergeList(ctx context.Context, localID uint, rl *remote.RemoteList) error {
	return r.store.WithListLock(ctx, localID, func(ctx context.Context) error {
		local, err := r.store.GetListWithItems(ctx, localID)
		if syncerr.IsNotFound(err) {
			// Deleted between snapshot and merge; the next pass sees
			// the vanished source id and removes the remote copy.
			otelzap.Ctx(ctx).Debug("List vanished mid-pass",
				zap.Uint("list_id", localID))
			return nil
		}
		if err != nil {
			return cerr.Wrapf(err, "read list %d", localID)
		}

		// The remote id is authoritative: a lost create response or a
		// half-applied merge leaves the local mapping empty or stale,
		// and this is the one place allowed to overwrite it.
		if local.ExternalID == nil || *local.ExternalID != rl.ID {
			if err := r.store.SetListExternalID(ctx, localID, rl.ID, true); err != nil {
				return cerr.Wrapf(err, "correct external id of list %d", localID)
			}
		}
		if local.Name != rl.Name {
			if err := r.store.UpdateListName(ctx, localID, rl.Name); err != nil {
				return cerr.Wrapf(err, "update name of list %d", localID)
			}
		}

		return r.mergeItems(ctx, local, rl)
	})
}

// mergeItems diffs one list's item sets. Remote items are matched to local
// ones by external id first, then by echoed source id so a lost mapping is
// repaired instead of duplicating the row; unmatched remote items are
// created locally. A local item whose external id has no remote match is
// flagged but never deleted here.
func (r *Reconciler) mergeItems(ctx context.Context, local *store.List, rl *remote.RemoteList) error {
	log := otelzap.Ctx(ctx)
	var merr *multierror.Error

	seen := make(map[string]struct{}, len(rl.Items))
	for _, ri := range rl.Items {
		seen[ri.ID] = struct{}{}

		match := local.ItemByExternalID(ri.ID)
		if match == nil {
			if itemID, err := parseSourceID(ri.SourceID); err == nil {
				if match = local.ItemByID(itemID); match != nil {
					if err := r.store.SetItemExternalID(ctx, match.ID, ri.ID, true); err != nil {
						merr = multierror.Append(merr, cerr.Wrapf(err, "correct external id of item %d", match.ID))
						continue
					}
				}
			}
		}

		if match == nil {
			externalID := ri.ID
			item := &store.Item{
				Title:      ri.Description,
				Completed:  ri.Completed,
				ExternalID: &externalID,
				ListID:     local.ID,
			}
			if err := r.store.CreateItem(ctx, item); err != nil {
				merr = multierror.Append(merr, cerr.Wrapf(err, "create local item for remote %s", ri.ID))
			}
			continue
		}

		if match.Title != ri.Description || match.Completed != ri.Completed {
			if err := r.store.UpdateItem(ctx, match.ID, ri.Description, ri.Completed); err != nil {
				merr = multierror.Append(merr, cerr.Wrapf(err, "update item %d from remote", match.ID))
			}
		}
	}

	for idx := range local.Items {
		item := &local.Items[idx]
		if item.ExternalID == nil {
			continue
		}
		if _, ok := seen[*item.ExternalID]; !ok {
			// Deletion-on-divergence is deliberately not implemented; a
			// transient remote omission must not destroy local data.
			log.Warn("Local item missing from remote snapshot, keeping it",
				zap.Uint("item_id", item.ID),
				zap.Uint("list_id", local.ID),
				zap.String("external_id", *item.ExternalID))
		}
	}

	return merr.ErrorOrNil()
}

func parseSourceID(raw string) (uint, error) {
	if raw == "" {
		return 0, cerr.New("empty source id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, cerr.Wrapf(err, "parse source id %q", raw)
	}
	return uint(id), nil
}
