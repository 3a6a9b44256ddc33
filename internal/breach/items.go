package breach

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/vault"
)

// ItemStore is the part of the vault a scan needs.
type ItemStore interface {
	Get(ctx context.Context, id string) (*vault.Item, error)
	RecordBreachCheck(ctx context.Context, id string, count int, at time.Time) (*vault.Item, error)
}

// CheckItem checks the item's secret and, if the lookup succeeded, stores the
// count on the item. Items without a secret are reported as clean without a
// lookup.
func (c *Client) CheckItem(ctx context.Context, items ItemStore, id string) (Result, error) {
	it, err := items.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if it.Secret == "" {
		return Result{}, nil
	}

	r := c.Check(ctx, it.Secret)
	if r.Err != nil {
		return r, nil
	}
	if _, err := items.RecordBreachCheck(ctx, id, r.Count, c.now().UTC()); err != nil {
		return r, err
	}
	return r, nil
}

// CheckItems runs CheckItem over ids in order, with the same cancellation and
// progress rules as CheckBatch. It stops at the first vault error.
func (c *Client) CheckItems(ctx context.Context, items ItemStore, ids []string, onProgress func(Progress)) ([]Result, error) {
	return runBatch(ctx, len(ids), onProgress, func(i int) (Result, error) {
		return c.CheckItem(ctx, items, ids[i])
	})
}
