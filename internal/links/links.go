// Package links implements burn-after-read secret links. A link carries a
// frozen copy of an item's disclosed fields and can be consumed at most
// MaxViews times in total, however many readers race for it.
package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type Kind string

const (
	KindPassword Kind = "password"
	KindNote     Kind = "note"
)

// idBytes is the amount of randomness in a link id. The id is the only
// credential needed to open a link.
const idBytes = 32

const keyPrefix = "links/"

// Payload is what a successful Consume discloses.
type Payload struct {
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
	Secret   string `json:"secret,omitempty"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Link is the stored record.
type Link struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"itemId"`
	Kind           Kind      `json:"kind"`
	Payload        Payload   `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ViewsRemaining int       `json:"viewsRemaining"`
	MaxViews       int       `json:"maxViews"`
}

// Metadata describes a live link without disclosing its payload.
type Metadata struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ViewsRemaining int       `json:"viewsRemaining"`
	MaxViews       int       `json:"maxViews"`
}

func (l *Link) metadata() *Metadata {
	return &Metadata{
		ID:             l.ID,
		Kind:           l.Kind,
		CreatedAt:      l.CreatedAt,
		ExpiresAt:      l.ExpiresAt,
		ViewsRemaining: l.ViewsRemaining,
		MaxViews:       l.MaxViews,
	}
}

// deadErr returns the reason l can no longer be disclosed at t, or nil.
func (l *Link) deadErr(t time.Time) error {
	if !t.Before(l.ExpiresAt) {
		return common.ErrExpired
	}
	if l.ViewsRemaining <= 0 {
		return common.ErrExhausted
	}
	return nil
}

type Options struct {
	TTL            time.Duration
	MaxViews       int
	RedactUsername bool
}

// Limits bound what Issue accepts.
type Limits struct {
	MaxTTL   time.Duration
	MaxViews int
}

// DefaultLimits allow links of up to a week and 100 views.
var DefaultLimits = Limits{MaxTTL: 7 * 24 * time.Hour, MaxViews: 100}

// Observer is told the outcome of every link operation.
type Observer interface {
	LinkOperation(op, outcome string)
}

type Protocol struct {
	store    kv.Store
	enc      cryptox.Encrypter
	key      []byte
	audit    audit.Sink
	logger   logging.Logger
	limits   Limits
	locks    *keyedMutex
	observer Observer
	now      func() time.Time
}

func NewProtocol(store kv.Store, enc cryptox.Encrypter, key []byte, sink audit.Sink, logger logging.Logger, limits Limits) *Protocol {
	return &Protocol{
		store:  store,
		enc:    enc,
		key:    key,
		audit:  sink,
		logger: logger.With("module", "links"),
		limits: limits,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Protocol) WithObserver(o Observer) *Protocol {
	p.observer = o
	return p
}

func (p *Protocol) observe(op string, err error) {
	if p.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, common.ErrExpired):
		outcome = "expired"
	case errors.Is(err, common.ErrExhausted):
		outcome = "exhausted"
	case errors.Is(err, common.ErrorNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	p.observer.LinkOperation(op, outcome)
}

func linkKey(id string) string { return keyPrefix + id }

// short is the form of an id that is safe to log.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (p *Protocol) decode(raw []byte) (*Link, error) {
	l := &Link{}
	if err := cryptox.OpenJSON(p.enc, p.key, raw, l); err != nil {
		return nil, fmt.Errorf("link decode error: %w", err)
	}
	return l, nil
}

func newPayload(item *vault.Item, kind Kind, redactUsername bool) Payload {
	if kind == KindNote {
		return Payload{Title: item.Title, Notes: item.Notes}
	}
	pl := Payload{Title: item.Title, Username: item.Username, Secret: item.Secret, URL: item.URL}
	if redactUsername {
		pl.Username = ""
	}
	return pl
}

// Issue freezes the disclosed fields of item into a new link and returns its
// metadata as stored.
func (p *Protocol) Issue(ctx context.Context, actor string, item *vault.Item, kind Kind, opts Options) (md *Metadata, err error) {
	defer func() { p.observe("issue", err) }()

	switch {
	case item == nil || item.Deleted:
		return nil, fmt.Errorf("item: %w", common.ErrorNotFound)
	case kind != KindPassword && kind != KindNote:
		return nil, fmt.Errorf("unknown link kind %q: %w", kind, common.ErrValidationFailed)
	case opts.TTL < 0 || (p.limits.MaxTTL > 0 && opts.TTL > p.limits.MaxTTL):
		return nil, fmt.Errorf("ttl %s out of range: %w", opts.TTL, common.ErrValidationFailed)
	case opts.MaxViews < 1 || (p.limits.MaxViews > 0 && opts.MaxViews > p.limits.MaxViews):
		return nil, fmt.Errorf("maxViews %d out of range: %w", opts.MaxViews, common.ErrValidationFailed)
	}

	id, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return nil, fmt.Errorf("link id: %w", err)
	}

	now := p.now()
	l := &Link{
		ID:             id,
		ItemID:         item.ID,
		Kind:           kind,
		Payload:        newPayload(item, kind, opts.RedactUsername),
		CreatedAt:      now,
		ExpiresAt:      now.Add(opts.TTL),
		ViewsRemaining: opts.MaxViews,
		MaxViews:       opts.MaxViews,
	}

	raw, err := cryptox.SealJSON(p.enc, p.key, l)
	if err != nil {
		return nil, err
	}
	ok, err := p.store.CompareAndSwap(ctx, linkKey(id), nil, raw)
	if err != nil {
		return nil, fmt.Errorf("error storing link: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("link id collision: %w", common.ErrVersionConflict)
	}

	p.logger.Info(ctx, "link issued", "link", short(id), "item", item.ID, "max_views", opts.MaxViews)
	details := fmt.Sprintf("%s link, max views %d", kind, opts.MaxViews)
	if err := p.audit.Append(ctx, audit.Entry{Actor: actor, Action: audit.ActionShare, TargetLabel: item.Title, Details: details}); err != nil {
		return l.metadata(), fmt.Errorf("audit: %w", err)
	}
	return l.metadata(), nil
}

// Peek validates a link without consuming a view. A dead link is removed and
// reported as common.ErrExpired or common.ErrExhausted.
func (p *Protocol) Peek(ctx context.Context, id string) (md *Metadata, err error) {
	defer func() { p.observe("peek", err) }()

	raw, err := p.store.Get(ctx, linkKey(id))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("link: %w", common.ErrorNotFound)
	}
	if err != nil {
		return nil, err
	}

	l, err := p.decode(raw)
	if err != nil {
		return nil, err
	}
	if dead := l.deadErr(p.now()); dead != nil {
		if _, err := p.store.CompareAndSwap(ctx, linkKey(id), raw, nil); err != nil {
			p.logger.Warn(ctx, "failed to remove dead link", "link", short(id), "error", err)
		}
		return nil, fmt.Errorf("link: %w", dead)
	}
	return l.metadata(), nil
}

// Consume discloses the payload and uses up one view. The last view deletes
// the link. Calls on one id are serialized in-process and the write is a
// compare-and-swap, so concurrent consumers in other processes are safe too.
func (p *Protocol) Consume(ctx context.Context, id string) (pl *Payload, err error) {
	defer func() { p.observe("consume", err) }()

	unlock := p.locks.Lock(id)
	defer unlock()

	var (
		disclosed *Payload
		dead      error
		remaining int
	)
	_, err = kv.Update(ctx, p.store, linkKey(id), func(cur []byte) ([]byte, error) {
		disclosed, dead = nil, nil
		if cur == nil {
			return nil, fmt.Errorf("link: %w", common.ErrorNotFound)
		}
		l, err := p.decode(cur)
		if err != nil {
			return nil, err
		}
		if dead = l.deadErr(p.now()); dead != nil {
			return nil, nil
		}

		l.ViewsRemaining--
		remaining = l.ViewsRemaining
		payload := l.Payload
		disclosed = &payload
		if l.ViewsRemaining == 0 {
			return nil, nil
		}
		return cryptox.SealJSON(p.enc, p.key, l)
	})
	if err != nil {
		return nil, err
	}
	if dead != nil {
		return nil, fmt.Errorf("link: %w", dead)
	}

	p.logger.Info(ctx, "link consumed", "link", short(id), "views_remaining", remaining)
	return disclosed, nil
}

// PurgeExpired removes every dead link and returns how many were removed.
// Expiry is enforced on read regardless; this only reclaims storage.
func (p *Protocol) PurgeExpired(ctx context.Context) (int, error) {
	keys, err := p.store.List(ctx, keyPrefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := p.purgeOne(ctx, strings.TrimPrefix(k, keyPrefix))
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		p.logger.Info(ctx, "purged dead links", "count", removed)
	}
	return removed, nil
}

func (p *Protocol) purgeOne(ctx context.Context, id string) (bool, error) {
	unlock := p.locks.Lock(id)
	defer unlock()

	raw, err := p.store.Get(ctx, linkKey(id))
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l, err := p.decode(raw)
	if err != nil {
		return false, err
	}
	if l.deadErr(p.now()) == nil {
		return false, nil
	}
	return p.store.CompareAndSwap(ctx, linkKey(id), raw, nil)
}
