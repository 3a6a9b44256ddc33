package grpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/breach"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/server/auth"
	"github.com/dmitrijs2005/keepershare/internal/sharing"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type e2e struct {
	conn  *grpc.ClientConn
	links *links.Protocol
}

func startE2E(t *testing.T) *e2e {
	t.Helper()

	ranges := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// SHA-1("hunter2") = F3BBBD66A63D4BF1747940578EC3D0103530E21D
		fmt.Fprint(w, "D66A63D4BF1747940578EC3D0103530E21D:17\r\n")
	}))
	t.Cleanup(ranges.Close)

	log := logging.Nop()
	store := kv.NewMemoryStore()
	key := make([]byte, cryptox.KeySize)
	auditLog := audit.NewLog(store, log)
	vs := vault.NewStore(store, cryptox.AESGCM{}, key, auditLog, log)
	lp := links.NewProtocol(store, cryptox.AESGCM{}, key, auditLog, log, links.DefaultLimits)

	srv := NewGRPCServer("bufnet", log, Services{
		Vault:  vs,
		Shares: sharing.NewManager(store, vs, auditLog, log),
		Links:  lp,
		Breach: breach.NewClient(breach.Config{BaseURL: ranges.URL, Timeout: time.Second}, log),
		Audit:  auditLog,
	}, LinkSettings{DefaultTTL: time.Hour, PublicBaseURL: "http://keep"}, "secret")

	lis := bufconn.Listen(1 << 20)
	gs := srv.NewServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &e2e{conn: conn, links: lp}
}

func (e *e2e) call(t *testing.T, actor, method string, req, resp any) error {
	t.Helper()
	ctx := context.Background()
	if actor != "" {
		tok, err := auth.GenerateToken(actor, []byte("secret"), time.Minute)
		require.NoError(t, err)
		ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, tok)
	}

	in, err := ToStruct(req)
	require.NoError(t, err)
	out := &structpb.Struct{}
	if err := e.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return err
	}
	if resp != nil {
		require.NoError(t, FromStruct(out, resp))
	}
	return nil
}

func TestE2E_VaultSharingAndLinks(t *testing.T) {
	e := startE2E(t)

	var created ItemResponse
	require.NoError(t, e.call(t, "alice", "CreateItem", CreateItemRequest{Fields: vault.Fields{
		Title: "Mail", Username: "a@b.com", Secret: "hunter2",
	}}, &created))
	id := created.Item.ID

	secret := "hunter3"
	var updated ItemResponse
	require.NoError(t, e.call(t, "alice", "UpdateItem", UpdateItemRequest{ID: id, Patch: vault.Patch{Secret: &secret}}, &updated))
	assert.Equal(t, "hunter3", updated.Item.Secret)
	require.Len(t, updated.Item.History, 1)
	assert.Equal(t, "hunter2", updated.Item.History[0].Secret)

	err := e.call(t, "alice", "RestoreVersion", RestoreVersionRequest{ID: id, Index: 5}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var grant GrantResponse
	require.NoError(t, e.call(t, "alice", "GrantShare", GrantShareRequest{ItemID: id, Grantee: "bob", Permission: sharing.PermissionRead}, &grant))
	err = e.call(t, "alice", "GrantShare", GrantShareRequest{ItemID: id, Grantee: "bob", Permission: sharing.PermissionRead}, nil)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	var received ListReceivedResponse
	require.NoError(t, e.call(t, "bob", "ListReceived", Empty{}, &received))
	require.Len(t, received.Items, 1)
	assert.Equal(t, "Mail", received.Items[0].Item.Title)

	var link IssueLinkResponse
	require.NoError(t, e.call(t, "alice", "IssueLink", IssueLinkRequest{ItemID: id, MaxViews: 2}, &link))
	assert.Equal(t, "http://keep/share/"+link.ID, link.URL)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		pl, err := e.links.Consume(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, "hunter3", pl.Secret)
	}
	_, err = e.links.Consume(ctx, link.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	var scan CheckBreachesResponse
	require.NoError(t, e.call(t, "alice", "CheckBreaches", CheckBreachesRequest{}, &scan))
	require.Len(t, scan.Results, 1)
	assert.Zero(t, scan.Results[0].Count)

	var trail ListAuditResponse
	require.NoError(t, e.call(t, "alice", "ListAudit", ListAuditRequest{Limit: 10}, &trail))
	require.NotEmpty(t, trail.Entries)
	assert.Equal(t, audit.ActionShare, trail.Entries[0].Action)
	assert.Equal(t, audit.ActionCreate, trail.Entries[len(trail.Entries)-1].Action)
}

func TestE2E_RequiresToken(t *testing.T) {
	e := startE2E(t)

	err := e.call(t, "", "ListItems", Empty{}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := healthpb.NewHealthClient(e.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
