package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/ids"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/logging"
)

const itemPrefix = "items/"

// errUnchanged aborts a mutation that would be a no-op.
var errUnchanged = errors.New("unchanged")

// Store is the Vault Store. Every write re-reads the persisted item and swaps
// it back with compare-and-swap, so concurrent writers (other processes,
// favorite toggles, breach results) are never silently overwritten.
type Store struct {
	kv     kv.Store
	enc    cryptox.Encrypter
	key    []byte
	audit  audit.Sink
	logger logging.Logger
	now    func() time.Time
}

// NewStore builds a Store persisting items through store, encrypted with enc
// under key, and reporting mutations to sink.
func NewStore(store kv.Store, enc cryptox.Encrypter, key []byte, sink audit.Sink, logger logging.Logger) *Store {
	return &Store{
		kv:     store,
		enc:    enc,
		key:    key,
		audit:  sink,
		logger: logger.With("module", "vault"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func itemKey(id string) string { return itemPrefix + id }

func (s *Store) encode(it *Item) ([]byte, error) {
	return cryptox.SealJSON(s.enc, s.key, it)
}

func (s *Store) decode(raw []byte) (*Item, error) {
	it := &Item{}
	if err := cryptox.OpenJSON(s.enc, s.key, raw, it); err != nil {
		return nil, fmt.Errorf("item decode error: %w", err)
	}
	return it, nil
}

func notFound(id string) error {
	return fmt.Errorf("item %s: %w", id, common.ErrorNotFound)
}

// mutate applies fn to the current persisted item and writes it back.
// It reports whether anything was written.
func (s *Store) mutate(ctx context.Context, id string, fn func(it *Item) error) (*Item, bool, error) {
	var result *Item
	_, err := kv.Update(ctx, s.kv, itemKey(id), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, notFound(id)
		}
		it, err := s.decode(cur)
		if err != nil {
			return nil, err
		}
		result = it
		if err := fn(it); err != nil {
			return nil, err
		}
		return s.encode(it)
	})
	if errors.Is(err, errUnchanged) {
		return result, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// record appends an audit entry for a mutation that has already been written.
func (s *Store) record(ctx context.Context, actor string, action audit.Action, target, details string) error {
	err := s.audit.Append(ctx, audit.Entry{Actor: actor, Action: action, TargetLabel: target, Details: details})
	if err != nil {
		s.logger.Error(ctx, "audit append failed", "action", action, "error", err)
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (s *Store) newItem(f Fields, now time.Time) *Item {
	return &Item{
		ID:           ids.New(),
		Title:        strings.TrimSpace(f.Title),
		Username:     f.Username,
		Secret:       f.Secret,
		URL:          f.URL,
		Notes:        f.Notes,
		Tags:         dedupeTags(f.Tags),
		CustomFields: append([]CustomField(nil), f.CustomFields...),
		FolderID:     f.FolderID,
		History:      []VersionSnapshot{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Create stores a new item and records a CREATE entry. If only the audit
// append fails the stored item is returned along with the error.
func (s *Store) Create(ctx context.Context, actor string, f Fields) (*Item, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	it := s.newItem(f, s.now())
	raw, err := s.encode(it)
	if err != nil {
		return nil, err
	}

	ok, err := s.kv.CompareAndSwap(ctx, itemKey(it.ID), nil, raw)
	if err != nil {
		return nil, fmt.Errorf("error creating item: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("error creating item %s: %w", it.ID, common.ErrVersionConflict)
	}

	s.logger.Info(ctx, "item created", "id", it.ID)
	if err := s.record(ctx, actor, audit.ActionCreate, it.Title, ""); err != nil {
		return it, err
	}
	return it, nil
}

// BulkCreate imports a batch of items with a single IMPORT entry. Entries
// with neither a secret nor a username are dropped before counting. Any other
// invalid entry rejects the whole batch and nothing is written.
func (s *Store) BulkCreate(ctx context.Context, actor string, batch []Fields) (int, error) {
	now := s.now()
	writes := make([]kv.Entry, 0, len(batch))

	for i, f := range batch {
		if f.Secret == "" && f.Username == "" {
			continue
		}
		if err := f.validate(); err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		it := s.newItem(f, now)
		raw, err := s.encode(it)
		if err != nil {
			return 0, err
		}
		writes = append(writes, kv.Entry{Key: itemKey(it.ID), Value: raw})
	}

	if len(writes) == 0 {
		return 0, nil
	}

	if err := kv.SetMany(ctx, s.kv, writes); err != nil {
		return 0, fmt.Errorf("error importing items: %w", err)
	}

	s.logger.Info(ctx, "items imported", "count", len(writes))
	details := fmt.Sprintf("imported %d items", len(writes))
	if err := s.record(ctx, actor, audit.ActionImport, "import", details); err != nil {
		return len(writes), err
	}
	return len(writes), nil
}

// Update applies p to a non-deleted item. The pre-update versioned fields are
// pushed to history.
func (s *Store) Update(ctx context.Context, actor, id string, p Patch) (*Item, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	it, _, err := s.mutate(ctx, id, func(it *Item) error {
		if it.Deleted {
			return notFound(id)
		}
		it.pushHistory(it.snapshot(now, actor))
		p.applyTo(it)
		it.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, actor, audit.ActionUpdate, it.Title, "fields: "+strings.Join(p.fieldNames(), ",")); err != nil {
		return it, err
	}
	return it, nil
}

// SetFavorite flips the favorite flag. It is not audited and does not touch
// history or updatedAt.
func (s *Store) SetFavorite(ctx context.Context, id string, favorite bool) (*Item, error) {
	it, _, err := s.mutate(ctx, id, func(it *Item) error {
		if it.Favorite == favorite {
			return errUnchanged
		}
		it.Favorite = favorite
		return nil
	})
	return it, err
}

// RecordBreachCheck stores the result of a breach lookup on the item.
func (s *Store) RecordBreachCheck(ctx context.Context, id string, count int, at time.Time) (*Item, error) {
	it, _, err := s.mutate(ctx, id, func(it *Item) error {
		it.BreachCount = &count
		it.LastBreachCheckAt = &at
		return nil
	})
	return it, err
}

// SoftDelete moves an item to the trash. Deleting a trashed item is a no-op.
func (s *Store) SoftDelete(ctx context.Context, actor, id string) (*Item, error) {
	now := s.now()
	it, changed, err := s.mutate(ctx, id, func(it *Item) error {
		if it.Deleted {
			return errUnchanged
		}
		it.Deleted = true
		it.DeletedAt = &now
		it.UpdatedAt = now
		return nil
	})
	if err != nil || !changed {
		return it, err
	}

	s.logger.Info(ctx, "item moved to trash", "id", id)
	if err := s.record(ctx, actor, audit.ActionDelete, it.Title, ""); err != nil {
		return it, err
	}
	return it, nil
}

// Restore takes an item out of the trash. Restoring an active item is a no-op.
func (s *Store) Restore(ctx context.Context, actor, id string) (*Item, error) {
	now := s.now()
	it, changed, err := s.mutate(ctx, id, func(it *Item) error {
		if !it.Deleted {
			return errUnchanged
		}
		it.Deleted = false
		it.DeletedAt = nil
		it.UpdatedAt = now
		return nil
	})
	if err != nil || !changed {
		return it, err
	}

	if err := s.record(ctx, actor, audit.ActionRestore, it.Title, ""); err != nil {
		return it, err
	}
	return it, nil
}

// PermanentlyDelete removes an item for good.
func (s *Store) PermanentlyDelete(ctx context.Context, actor, id string) error {
	var title string
	_, err := kv.Update(ctx, s.kv, itemKey(id), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, notFound(id)
		}
		it, err := s.decode(cur)
		if err != nil {
			return nil, err
		}
		title = it.Title
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "item permanently deleted", "id", id)
	return s.record(ctx, actor, audit.ActionPermanentDelete, title, "")
}

// RestoreVersion swaps the item's versioned fields with history[index]. The
// current values become the newest history entry and the restored entry is
// removed, so the history length is unchanged.
func (s *Store) RestoreVersion(ctx context.Context, actor, id string, index int) (*Item, error) {
	now := s.now()
	var restored VersionSnapshot
	it, _, err := s.mutate(ctx, id, func(it *Item) error {
		if it.Deleted {
			return notFound(id)
		}
		if index < 0 || index >= len(it.History) {
			return fmt.Errorf("history index %d of %d: %w", index, len(it.History), common.ErrInvalidIndex)
		}
		restored = it.History[index]
		pre := it.snapshot(now, actor)
		it.History = append(it.History[:index:index], it.History[index+1:]...)
		it.pushHistory(pre)
		it.apply(restored)
		it.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := "restored version from " + restored.ChangedAt.UTC().Format(time.RFC3339)
	if err := s.record(ctx, actor, audit.ActionRestoreVersion, it.Title, details); err != nil {
		return it, err
	}
	return it, nil
}

// Get returns an item whether or not it is in the trash.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	raw, err := s.kv.Get(ctx, itemKey(id))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

func (s *Store) all(ctx context.Context) ([]*Item, error) {
	keys, err := s.kv.List(ctx, itemPrefix)
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(keys))
	for _, k := range keys {
		it, err := s.Get(ctx, strings.TrimPrefix(k, itemPrefix))
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// List returns active items ordered by title.
func (s *Store) List(ctx context.Context) ([]*Item, error) {
	items, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	active := items[:0]
	for _, it := range items {
		if !it.Deleted {
			active = append(active, it)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := strings.ToLower(active[i].Title), strings.ToLower(active[j].Title)
		if a != b {
			return a < b
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

// ListTrash returns soft-deleted items, most recently deleted first.
func (s *Store) ListTrash(ctx context.Context) ([]*Item, error) {
	items, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	trash := items[:0]
	for _, it := range items {
		if it.Deleted {
			trash = append(trash, it)
		}
	}
	sort.SliceStable(trash, func(i, j int) bool {
		return trash[i].DeletedAt.After(*trash[j].DeletedAt)
	})
	return trash, nil
}
