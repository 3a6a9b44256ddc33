package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/breach"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/sharing"
	"github.com/dmitrijs2005/keepershare/internal/timex"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type VaultService interface {
	Create(ctx context.Context, actor string, f vault.Fields) (*vault.Item, error)
	BulkCreate(ctx context.Context, actor string, batch []vault.Fields) (int, error)
	Update(ctx context.Context, actor, id string, p vault.Patch) (*vault.Item, error)
	Get(ctx context.Context, id string) (*vault.Item, error)
	List(ctx context.Context) ([]*vault.Item, error)
	ListTrash(ctx context.Context) ([]*vault.Item, error)
	SetFavorite(ctx context.Context, id string, favorite bool) (*vault.Item, error)
	RecordBreachCheck(ctx context.Context, id string, count int, at time.Time) (*vault.Item, error)
	SoftDelete(ctx context.Context, actor, id string) (*vault.Item, error)
	Restore(ctx context.Context, actor, id string) (*vault.Item, error)
	PermanentlyDelete(ctx context.Context, actor, id string) error
	RestoreVersion(ctx context.Context, actor, id string, index int) (*vault.Item, error)
}

type ShareService interface {
	Grant(ctx context.Context, actor, itemID, grantee string, perm sharing.Permission, ttl time.Duration) (*sharing.Grant, error)
	Revoke(ctx context.Context, actor, grantID string) error
	ListActiveFor(ctx context.Context, itemID string) ([]sharing.Grant, error)
	DropItem(ctx context.Context, itemID string) (int, error)
	ListReceivedBy(ctx context.Context, grantee string) ([]sharing.Received, error)
}

type LinkService interface {
	Issue(ctx context.Context, actor string, item *vault.Item, kind links.Kind, opts links.Options) (*links.Metadata, error)
}

type BreachService interface {
	CheckItems(ctx context.Context, items breach.ItemStore, ids []string, onProgress func(breach.Progress)) ([]breach.Result, error)
}

type AuditLog interface {
	List(ctx context.Context, limit int) ([]audit.Entry, error)
}

type ItemRequest struct {
	ID string `json:"id"`
}

type ItemResponse struct {
	Item *vault.Item `json:"item"`
}

type ItemsResponse struct {
	Items []*vault.Item `json:"items"`
}

type Empty struct{}

type CreateItemRequest struct {
	Fields vault.Fields `json:"fields"`
}

type ImportItemsRequest struct {
	Items []vault.Fields `json:"items"`
}

type ImportItemsResponse struct {
	Count int `json:"count"`
}

type UpdateItemRequest struct {
	ID    string      `json:"id"`
	Patch vault.Patch `json:"patch"`
}

type SetFavoriteRequest struct {
	ID       string `json:"id"`
	Favorite bool   `json:"favorite"`
}

type RestoreVersionRequest struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

type GrantShareRequest struct {
	ItemID     string             `json:"itemId"`
	Grantee    string             `json:"grantee"`
	Permission sharing.Permission `json:"permission"`
	TTL        timex.Duration     `json:"ttl"`
}

type GrantResponse struct {
	Grant *sharing.Grant `json:"grant"`
}

type RevokeShareRequest struct {
	GrantID string `json:"grantId"`
}

type ListGrantsRequest struct {
	ItemID string `json:"itemId"`
}

type ListGrantsResponse struct {
	Grants []sharing.Grant `json:"grants"`
}

type ReceivedItem struct {
	Item  *vault.Item   `json:"item"`
	Grant sharing.Grant `json:"grant"`
}

type ListReceivedResponse struct {
	Items []ReceivedItem `json:"items"`
}

type IssueLinkRequest struct {
	ItemID         string          `json:"itemId"`
	Kind           links.Kind      `json:"kind"`
	TTL            *timex.Duration `json:"ttl"`
	MaxViews       int             `json:"maxViews"`
	RedactUsername bool            `json:"redactUsername"`
}

type IssueLinkResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CheckBreachesRequest struct {
	ItemIDs []string `json:"itemIds"`
}

type BreachResult struct {
	ItemID    string `json:"itemId"`
	Count     int    `json:"count"`
	FromCache bool   `json:"fromCache"`
	Error     string `json:"error,omitempty"`
}

type CheckBreachesResponse struct {
	Results []BreachResult `json:"results"`
}

type ListAuditRequest struct {
	Limit int `json:"limit"`
}

type ListAuditResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func actorOrDeny(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no actor")
	}
	return actor, nil
}

func (s *GRPCServer) CreateItem(ctx context.Context, req *CreateItemRequest) (*ItemResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.vault.Create(ctx, actor, req.Fields)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) ImportItems(ctx context.Context, req *ImportItemsRequest) (*ImportItemsResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.vault.BulkCreate(ctx, actor, req.Items)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ImportItemsResponse{Count: n}, nil
}

func (s *GRPCServer) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*ItemResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.vault.Update(ctx, actor, req.ID, req.Patch)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) GetItem(ctx context.Context, req *ItemRequest) (*ItemResponse, error) {
	it, err := s.vault.Get(ctx, req.ID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) ListItems(ctx context.Context, _ *Empty) (*ItemsResponse, error) {
	items, err := s.vault.List(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemsResponse{Items: items}, nil
}

func (s *GRPCServer) ListTrash(ctx context.Context, _ *Empty) (*ItemsResponse, error) {
	items, err := s.vault.ListTrash(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemsResponse{Items: items}, nil
}

func (s *GRPCServer) SetFavorite(ctx context.Context, req *SetFavoriteRequest) (*ItemResponse, error) {
	it, err := s.vault.SetFavorite(ctx, req.ID, req.Favorite)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) DeleteItem(ctx context.Context, req *ItemRequest) (*ItemResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.vault.SoftDelete(ctx, actor, req.ID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) RestoreItem(ctx context.Context, req *ItemRequest) (*ItemResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.vault.Restore(ctx, actor, req.ID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) PurgeItem(ctx context.Context, req *ItemRequest) (*Empty, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.vault.PermanentlyDelete(ctx, actor, req.ID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if _, err := s.shares.DropItem(ctx, req.ID); err != nil {
		s.logger.Warn(ctx, "failed to drop grants of purged item", "item", req.ID, "error", err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) RestoreVersion(ctx context.Context, req *RestoreVersionRequest) (*ItemResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	it, err := s.vault.RestoreVersion(ctx, actor, req.ID, req.Index)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ItemResponse{Item: it}, nil
}

func (s *GRPCServer) GrantShare(ctx context.Context, req *GrantShareRequest) (*GrantResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.shares.Grant(ctx, actor, req.ItemID, req.Grantee, req.Permission, req.TTL.Duration)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &GrantResponse{Grant: g}, nil
}

func (s *GRPCServer) RevokeShare(ctx context.Context, req *RevokeShareRequest) (*Empty, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.shares.Revoke(ctx, actor, req.GrantID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ListGrants(ctx context.Context, req *ListGrantsRequest) (*ListGrantsResponse, error) {
	grants, err := s.shares.ListActiveFor(ctx, req.ItemID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ListGrantsResponse{Grants: grants}, nil
}

// ListReceived lists the items shared with the calling actor.
func (s *GRPCServer) ListReceived(ctx context.Context, _ *Empty) (*ListReceivedResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}
	received, err := s.shares.ListReceivedBy(ctx, actor)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := make([]ReceivedItem, 0, len(received))
	for _, r := range received {
		out = append(out, ReceivedItem{Item: r.Item, Grant: r.Grant})
	}
	return &ListReceivedResponse{Items: out}, nil
}

// IssueLink creates a one-time link for an item. A missing ttl uses the
// server default; maxViews defaults to one.
func (s *GRPCServer) IssueLink(ctx context.Context, req *IssueLinkRequest) (*IssueLinkResponse, error) {
	actor, err := actorOrDeny(ctx)
	if err != nil {
		return nil, err
	}

	it, err := s.vault.Get(ctx, req.ItemID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	opts := links.Options{TTL: s.linkCfg.DefaultTTL, MaxViews: req.MaxViews, RedactUsername: req.RedactUsername}
	if req.TTL != nil {
		opts.TTL = req.TTL.Duration
	}
	if opts.MaxViews == 0 {
		opts.MaxViews = 1
	}
	kind := req.Kind
	if kind == "" {
		kind = links.KindPassword
	}

	md, err := s.links.Issue(ctx, actor, it, kind, opts)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &IssueLinkResponse{ID: md.ID, URL: s.shareURL(md.ID), ExpiresAt: md.ExpiresAt}, nil
}

// CheckBreaches checks the given items, or every active item when none are
// named, and stores the counts on them.
func (s *GRPCServer) CheckBreaches(ctx context.Context, req *CheckBreachesRequest) (*CheckBreachesResponse, error) {
	ids := req.ItemIDs
	if len(ids) == 0 {
		items, err := s.vault.List(ctx)
		if err != nil {
			return nil, s.toStatus(ctx, err)
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}

	results, err := s.breach.CheckItems(ctx, s.vault, ids, func(p breach.Progress) {
		s.logger.Debug(ctx, "breach scan progress", "current", p.Current, "total", p.Total)
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := make([]BreachResult, 0, len(results))
	for i, r := range results {
		br := BreachResult{ItemID: ids[i], Count: r.Count, FromCache: r.FromCache}
		if r.Err != nil {
			br.Error = r.Err.Error()
		}
		out = append(out, br)
	}
	return &CheckBreachesResponse{Results: out}, nil
}

func (s *GRPCServer) ListAudit(ctx context.Context, req *ListAuditRequest) (*ListAuditResponse, error) {
	entries, err := s.audit.List(ctx, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ListAuditResponse{Entries: entries}, nil
}
