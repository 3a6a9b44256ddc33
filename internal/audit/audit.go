// Package audit implements the append-only log of vault mutations.
//
// Every successful mutating operation in the vault, sharing and link layers
// appends exactly one Entry. Entries are never updated or removed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/ids"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/logging"
)

// Action names the kind of mutation an entry records.
type Action string

const (
	ActionCreate          Action = "CREATE"
	ActionUpdate          Action = "UPDATE"
	ActionDelete          Action = "DELETE"
	ActionRestore         Action = "RESTORE"
	ActionPermanentDelete Action = "PERMANENT_DELETE"
	ActionImport          Action = "IMPORT"
	ActionShare           Action = "SHARE"
	ActionUnshare         Action = "UNSHARE"
	ActionRestoreVersion  Action = "RESTORE_VERSION"
)

// Entry is a single audit record.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"ts"`
	Actor       string    `json:"actor"`
	Action      Action    `json:"action"`
	TargetLabel string    `json:"target"`
	Details     string    `json:"details,omitempty"`
}

// Sink receives audit entries from the mutating components.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Observer is notified after an entry has been persisted.
type Observer interface {
	AuditAppended(action string)
}

const keyPrefix = "audit/"

// Log is a Sink persisted in a kv.Store under "audit/<ulid>" keys, so key
// order is insertion order.
type Log struct {
	store    kv.Store
	logger   logging.Logger
	observer Observer
	now      func() time.Time
}

func NewLog(store kv.Store, logger logging.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger.With("module", "audit"),
		now:    time.Now,
	}
}

// WithObserver sets a hook called after each successful append.
func (l *Log) WithObserver(o Observer) *Log {
	l.observer = o
	return l
}

// Append assigns id and timestamp (if unset) and persists e.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	e.ID = ids.Ordered(e.Timestamp)

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ok, err := l.store.CompareAndSwap(ctx, keyPrefix+e.ID, nil, data)
	if err != nil {
		return fmt.Errorf("audit append error: %w", err)
	}
	if !ok {
		return fmt.Errorf("audit append error: duplicate id %s", e.ID)
	}

	l.logger.Info(ctx, "audit", "action", e.Action, "actor", e.Actor, "target", e.TargetLabel)
	if l.observer != nil {
		l.observer.AuditAppended(string(e.Action))
	}
	return nil
}

// List returns entries newest first. limit <= 0 returns everything.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	keys, err := l.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("audit list error: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		data, err := l.store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("audit read %s: %w", strings.TrimPrefix(k, keyPrefix), err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("audit decode %s: %w", strings.TrimPrefix(k, keyPrefix), err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
