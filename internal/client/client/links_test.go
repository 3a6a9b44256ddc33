package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/server/httpapi"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

func startLinks(t *testing.T) (*httptest.Server, *links.Protocol, *vault.Item) {
	t.Helper()
	log := logging.Nop()
	store := kv.NewMemoryStore()
	key := make([]byte, cryptox.KeySize)
	auditLog := audit.NewLog(store, log)
	vs := vault.NewStore(store, cryptox.AESGCM{}, key, auditLog, log)
	lp := links.NewProtocol(store, cryptox.AESGCM{}, key, auditLog, log, links.DefaultLimits)

	it, err := vs.Create(context.Background(), "alice", vault.Fields{Title: "Mail", Username: "a@x", Secret: "pw"})
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewHTTPServer("", log, lp, nil, httpapi.Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv, lp, it
}

func TestLinkClient_PeekThenConsume(t *testing.T) {
	srv, lp, it := startLinks(t)
	ctx := context.Background()

	link, err := lp.Issue(ctx, "alice", it, links.KindPassword, links.Options{TTL: time.Hour, MaxViews: 1})
	require.NoError(t, err)
	id := link.ID
	url := srv.URL + common.ShareLinkPath + id

	c := NewLinkClient(time.Second)

	md, err := c.Peek(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 1, md.ViewsRemaining)

	pl, err := c.Consume(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "pw", pl.Secret)
	assert.Equal(t, "Mail", pl.Title)

	_, err = c.Consume(ctx, url)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLinkClient_Expired(t *testing.T) {
	srv, lp, it := startLinks(t)
	ctx := context.Background()

	link, err := lp.Issue(ctx, "alice", it, links.KindPassword, links.Options{TTL: 0, MaxViews: 1})
	require.NoError(t, err)
	id := link.ID

	_, err = NewLinkClient(time.Second).Peek(ctx, srv.URL+common.ShareLinkPath+id)
	assert.ErrorIs(t, err, common.ErrExpired)
}

func TestLinkClient_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":"exhausted"}`))
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewLinkClient(time.Second)
	ctx := context.Background()

	_, err := c.Peek(ctx, srv.URL+"/gone")
	assert.ErrorIs(t, err, common.ErrExhausted)

	_, err = c.Peek(ctx, srv.URL+"/busy")
	assert.ErrorContains(t, err, "rate limited")

	_, err = c.Peek(ctx, srv.URL+"/other")
	assert.ErrorContains(t, err, "unexpected status")

	_, err = c.Peek(ctx, "http://127.0.0.1:1/share/x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
