package server

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keepershare/internal/kv"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/server/config"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

type closingStore struct {
	*kv.MemoryStore
	closed bool
}

func (c *closingStore) Close() error {
	c.closed = true
	return nil
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.LinkSweepInterval = 10 * time.Millisecond
	return c
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	c := testConfig()
	c.Storage = "tape"
	_, err := NewApp(context.Background(), c, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewApp_StorageError(t *testing.T) {
	orig := openStore
	t.Cleanup(func() { openStore = orig })
	openStore = func(context.Context, *config.Config) (kv.Store, error) { return nil, errors.New("no db") }

	_, err := NewApp(context.Background(), testConfig(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "no db")
}

func TestApp_RunSweepsAndStops(t *testing.T) {
	store := &closingStore{MemoryStore: kv.NewMemoryStore()}
	orig := openStore
	t.Cleanup(func() { openStore = orig })
	openStore = func(context.Context, *config.Config) (kv.Store, error) { return store, nil }

	var logs bytes.Buffer
	app, err := NewApp(context.Background(), testConfig(), &logs)
	require.NoError(t, err)

	ctx := context.Background()
	it, err := app.vault.Create(ctx, "alice", vault.Fields{Title: "Mail", Secret: "s"})
	require.NoError(t, err)
	_, err = app.links.Issue(ctx, "alice", it, links.KindPassword, links.Options{TTL: 0, MaxViews: 1})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		app.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		keys, err := store.List(ctx, "links/")
		return err == nil && len(keys) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, store.closed)
	assert.Contains(t, logs.String(), "Starting app...")
}
