// Package sharing implements durable, permissioned access grants to a vault
// item for a named recipient. Expiry is lazy: it is checked whenever grants
// are read and no background sweep is required for correctness.
package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/ids"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

func (p Permission) valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// Grant gives Grantee access to ItemID until ExpiresAt (nil means forever)
// or until it is revoked.
type Grant struct {
	ID             string     `json:"id"`
	ItemID         string     `json:"itemId"`
	Grantor        string     `json:"grantor"`
	Grantee        string     `json:"grantee"`
	Permission     Permission `json:"permission"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

// ActiveAt reports whether g is still valid at t.
func (g *Grant) ActiveAt(t time.Time) bool {
	return g.ExpiresAt == nil || t.Before(*g.ExpiresAt)
}

// Received is a shared item as seen by its grantee.
type Received struct {
	Item  *vault.Item
	Grant Grant
}

// ItemSource resolves the items grants point at.
type ItemSource interface {
	Get(ctx context.Context, id string) (*vault.Item, error)
}

const (
	grantPrefix = "grants/"
	pairPrefix  = "grant-pairs/"
)

func grantKey(id string) string { return grantPrefix + id }

// pairKey holds the id of the newest grant for an (item, grantee) pair and
// serializes duplicate detection.
func pairKey(itemID, grantee string) string { return pairPrefix + itemID + "/" + grantee }

type Manager struct {
	store  kv.Store
	items  ItemSource
	audit  audit.Sink
	logger logging.Logger
	now    func() time.Time
}

func NewManager(store kv.Store, items ItemSource, sink audit.Sink, logger logging.Logger) *Manager {
	return &Manager{
		store:  store,
		items:  items,
		audit:  sink,
		logger: logger.With("module", "sharing"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) load(ctx context.Context, id string) (*Grant, error) {
	raw, err := m.store.Get(ctx, grantKey(id))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("grant %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, err
	}
	g := &Grant{}
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("grant decode error: %w", err)
	}
	return g, nil
}

// Grant shares itemID with grantee. ttl <= 0 creates a grant without expiry.
// An active grant for the same pair is rejected with common.ErrAlreadyShared.
func (m *Manager) Grant(ctx context.Context, actor, itemID, grantee string, perm Permission, ttl time.Duration) (*Grant, error) {
	grantee = strings.TrimSpace(grantee)
	switch {
	case grantee == "":
		return nil, fmt.Errorf("grantee is required: %w", common.ErrValidationFailed)
	case grantee == actor:
		return nil, fmt.Errorf("cannot share with yourself: %w", common.ErrValidationFailed)
	case !perm.valid():
		return nil, fmt.Errorf("unknown permission %q: %w", perm, common.ErrValidationFailed)
	}

	item, err := m.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return nil, fmt.Errorf("item %s: %w", itemID, common.ErrorNotFound)
	}

	now := m.now()
	g := &Grant{
		ID:         ids.New(),
		ItemID:     itemID,
		Grantor:    actor,
		Grantee:    grantee,
		Permission: perm,
		CreatedAt:  now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		g.ExpiresAt = &exp
	}

	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, grantKey(g.ID), data); err != nil {
		return nil, fmt.Errorf("error storing grant: %w", err)
	}

	// The grant record exists before the pair points at it, so a racing
	// Grant on the same pair always sees it as active.
	_, err = kv.Update(ctx, m.store, pairKey(itemID, grantee), func(cur []byte) ([]byte, error) {
		if cur != nil {
			prev, err := m.load(ctx, string(cur))
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return nil, err
			}
			if prev != nil && prev.ActiveAt(now) {
				return nil, fmt.Errorf("item %s already shared with %s: %w", itemID, grantee, common.ErrAlreadyShared)
			}
		}
		return []byte(g.ID), nil
	})
	if err != nil {
		if delErr := m.store.Delete(ctx, grantKey(g.ID)); delErr != nil {
			m.logger.Warn(ctx, "failed to remove unclaimed grant", "error", delErr)
		}
		return nil, err
	}

	m.logger.Info(ctx, "grant created", "grant", g.ID, "item", itemID)
	details := fmt.Sprintf("grantee=%s permission=%s", grantee, perm)
	if err := m.audit.Append(ctx, audit.Entry{Actor: actor, Action: audit.ActionShare, TargetLabel: item.Title, Details: details}); err != nil {
		return g, fmt.Errorf("audit: %w", err)
	}
	return g, nil
}

// Revoke removes a grant. Only its grantor may revoke it. Revoking a grant
// that is already gone succeeds and records nothing.
func (m *Manager) Revoke(ctx context.Context, actor, grantID string) error {
	var revoked *Grant
	_, err := kv.Update(ctx, m.store, grantKey(grantID), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, kv.ErrSkip
		}
		g := &Grant{}
		if err := json.Unmarshal(cur, g); err != nil {
			return nil, fmt.Errorf("grant decode error: %w", err)
		}
		if g.Grantor != actor {
			return nil, fmt.Errorf("grant %s: %w", grantID, common.ErrorUnauthorized)
		}
		revoked = g
		return nil, nil
	})
	if errors.Is(err, kv.ErrSkip) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := m.store.CompareAndSwap(ctx, pairKey(revoked.ItemID, revoked.Grantee), []byte(revoked.ID), nil); err != nil {
		m.logger.Warn(ctx, "failed to release grant pair", "error", err)
	}

	label := revoked.ItemID
	if item, err := m.items.Get(ctx, revoked.ItemID); err == nil {
		label = item.Title
	}

	m.logger.Info(ctx, "grant revoked", "grant", grantID)
	details := "grantee=" + revoked.Grantee
	if err := m.audit.Append(ctx, audit.Entry{Actor: actor, Action: audit.ActionUnshare, TargetLabel: label, Details: details}); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// active returns all non-expired grants matching keep, oldest first.
func (m *Manager) active(ctx context.Context, keep func(*Grant) bool) ([]*Grant, error) {
	keys, err := m.store.List(ctx, grantPrefix)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var out []*Grant
	for _, k := range keys {
		g, err := m.load(ctx, strings.TrimPrefix(k, grantPrefix))
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if g.ActiveAt(now) && keep(g) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListActiveFor returns the unexpired grants on itemID. An item in the trash
// has no active grants.
func (m *Manager) ListActiveFor(ctx context.Context, itemID string) ([]Grant, error) {
	item, err := m.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Deleted {
		return []Grant{}, nil
	}

	gs, err := m.active(ctx, func(g *Grant) bool { return g.ItemID == itemID })
	if err != nil {
		return nil, err
	}
	out := make([]Grant, 0, len(gs))
	for _, g := range gs {
		out = append(out, *g)
	}
	return out, nil
}

// DropItem removes every grant on itemID, expired ones included, and
// releases their pairs. It is called once the item has been purged, so the
// permanent delete entry already covers it in the audit log.
func (m *Manager) DropItem(ctx context.Context, itemID string) (int, error) {
	keys, err := m.store.List(ctx, grantPrefix)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, k := range keys {
		g, err := m.load(ctx, strings.TrimPrefix(k, grantPrefix))
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return dropped, err
		}
		if g.ItemID != itemID {
			continue
		}
		if err := m.store.Delete(ctx, k); err != nil {
			return dropped, fmt.Errorf("error removing grant %s: %w", g.ID, err)
		}
		if _, err := m.store.CompareAndSwap(ctx, pairKey(g.ItemID, g.Grantee), []byte(g.ID), nil); err != nil {
			m.logger.Warn(ctx, "failed to release grant pair", "error", err)
		}
		dropped++
	}
	if dropped > 0 {
		m.logger.Info(ctx, "grants dropped with item", "item", itemID, "count", dropped)
	}
	return dropped, nil
}

// ListReceivedBy joins the grantee's active grants to their items and stamps
// each grant's lastAccessedAt. Grants whose item is gone or in the trash are
// skipped.
func (m *Manager) ListReceivedBy(ctx context.Context, grantee string) ([]Received, error) {
	gs, err := m.active(ctx, func(g *Grant) bool { return g.Grantee == grantee })
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Received, 0, len(gs))
	for _, g := range gs {
		item, err := m.items.Get(ctx, g.ItemID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if item.Deleted {
			continue
		}

		touched, err := m.touch(ctx, g.ID, now)
		if errors.Is(err, kv.ErrSkip) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Received{Item: item, Grant: *touched})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Item.Title) < strings.ToLower(out[j].Item.Title)
	})
	return out, nil
}

// touch sets lastAccessedAt, returning kv.ErrSkip if the grant was revoked
// in the meantime.
func (m *Manager) touch(ctx context.Context, id string, at time.Time) (*Grant, error) {
	var g *Grant
	_, err := kv.Update(ctx, m.store, grantKey(id), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, kv.ErrSkip
		}
		g = &Grant{}
		if err := json.Unmarshal(cur, g); err != nil {
			return nil, fmt.Errorf("grant decode error: %w", err)
		}
		g.LastAccessedAt = &at
		return json.Marshal(g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
