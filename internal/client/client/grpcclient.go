package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/common"
	gs "github.com/dmitrijs2005/keepershare/internal/server/grpc"
	"github.com/dmitrijs2005/keepershare/internal/sharing"
	"github.com/dmitrijs2005/keepershare/internal/timex"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	accessToken string
	timeout     time.Duration
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a lazy connection to endpointURL. No network traffic
// happens until the first call. Extra dial options are appended as given.
func NewGRPCClient(endpointURL, accessToken string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)
	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// call sends req as a Struct to the named VaultService method and decodes
// the reply into resp.
func (s *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	in, err := gs.ToStruct(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, gs.FullMethod(method), in, out); err != nil {
		return s.mapError(err)
	}
	if resp == nil {
		return nil
	}
	if err := gs.FromStruct(out, resp); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.PermissionDenied:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorUnauthorized)
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrorNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrValidationFailed)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), common.ErrAlreadyShared)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

// Ping asks the standard health service whether the server is serving.
func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(s.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) CreateItem(ctx context.Context, f vault.Fields) (*vault.Item, error) {
	var resp gs.ItemResponse
	if err := s.call(ctx, "CreateItem", gs.CreateItemRequest{Fields: f}, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

func (s *GRPCClient) ImportItems(ctx context.Context, items []vault.Fields) (int, error) {
	var resp gs.ImportItemsResponse
	if err := s.call(ctx, "ImportItems", gs.ImportItemsRequest{Items: items}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (s *GRPCClient) GetItem(ctx context.Context, id string) (*vault.Item, error) {
	return s.itemCall(ctx, "GetItem", id)
}

func (s *GRPCClient) DeleteItem(ctx context.Context, id string) (*vault.Item, error) {
	return s.itemCall(ctx, "DeleteItem", id)
}

func (s *GRPCClient) RestoreItem(ctx context.Context, id string) (*vault.Item, error) {
	return s.itemCall(ctx, "RestoreItem", id)
}

func (s *GRPCClient) PurgeItem(ctx context.Context, id string) error {
	return s.call(ctx, "PurgeItem", gs.ItemRequest{ID: id}, nil)
}

func (s *GRPCClient) itemCall(ctx context.Context, method, id string) (*vault.Item, error) {
	var resp gs.ItemResponse
	if err := s.call(ctx, method, gs.ItemRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	if resp.Item == nil {
		return nil, errors.New("empty item in response")
	}
	return resp.Item, nil
}

func (s *GRPCClient) RestoreVersion(ctx context.Context, id string, index int) (*vault.Item, error) {
	var resp gs.ItemResponse
	if err := s.call(ctx, "RestoreVersion", gs.RestoreVersionRequest{ID: id, Index: index}, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

func (s *GRPCClient) ListItems(ctx context.Context) ([]*vault.Item, error) {
	var resp gs.ItemsResponse
	if err := s.call(ctx, "ListItems", gs.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *GRPCClient) ListTrash(ctx context.Context) ([]*vault.Item, error) {
	var resp gs.ItemsResponse
	if err := s.call(ctx, "ListTrash", gs.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *GRPCClient) GrantShare(ctx context.Context, itemID, grantee string, perm sharing.Permission, ttl time.Duration) (*sharing.Grant, error) {
	req := gs.GrantShareRequest{ItemID: itemID, Grantee: grantee, Permission: perm, TTL: timex.Duration{Duration: ttl}}
	var resp gs.GrantResponse
	if err := s.call(ctx, "GrantShare", req, &resp); err != nil {
		return nil, err
	}
	return resp.Grant, nil
}

func (s *GRPCClient) RevokeShare(ctx context.Context, grantID string) error {
	return s.call(ctx, "RevokeShare", gs.RevokeShareRequest{GrantID: grantID}, nil)
}

func (s *GRPCClient) ListGrants(ctx context.Context, itemID string) ([]sharing.Grant, error) {
	var resp gs.ListGrantsResponse
	if err := s.call(ctx, "ListGrants", gs.ListGrantsRequest{ItemID: itemID}, &resp); err != nil {
		return nil, err
	}
	return resp.Grants, nil
}

func (s *GRPCClient) ListReceived(ctx context.Context) ([]gs.ReceivedItem, error) {
	var resp gs.ListReceivedResponse
	if err := s.call(ctx, "ListReceived", gs.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *GRPCClient) IssueLink(ctx context.Context, req gs.IssueLinkRequest) (*gs.IssueLinkResponse, error) {
	var resp gs.IssueLinkResponse
	if err := s.call(ctx, "IssueLink", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) CheckBreaches(ctx context.Context, itemIDs []string) ([]gs.BreachResult, error) {
	var resp gs.CheckBreachesResponse
	if err := s.call(ctx, "CheckBreaches", gs.CheckBreachesRequest{ItemIDs: itemIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (s *GRPCClient) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	var resp gs.ListAuditResponse
	if err := s.call(ctx, "ListAudit", gs.ListAuditRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
