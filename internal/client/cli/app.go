package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/audit"
	"github.com/dmitrijs2005/keepershare/internal/breach"
	"github.com/dmitrijs2005/keepershare/internal/client/client"
	"github.com/dmitrijs2005/keepershare/internal/client/config"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	gs "github.com/dmitrijs2005/keepershare/internal/server/grpc"
	"github.com/dmitrijs2005/keepershare/internal/sharing"
	"github.com/dmitrijs2005/keepershare/internal/vault"
)

// VaultAPI is the server surface the item, share and audit commands use.
type VaultAPI interface {
	CreateItem(ctx context.Context, f vault.Fields) (*vault.Item, error)
	ImportItems(ctx context.Context, items []vault.Fields) (int, error)
	GetItem(ctx context.Context, id string) (*vault.Item, error)
	ListItems(ctx context.Context) ([]*vault.Item, error)
	ListTrash(ctx context.Context) ([]*vault.Item, error)
	DeleteItem(ctx context.Context, id string) (*vault.Item, error)
	RestoreItem(ctx context.Context, id string) (*vault.Item, error)
	PurgeItem(ctx context.Context, id string) error
	RestoreVersion(ctx context.Context, id string, index int) (*vault.Item, error)
	GrantShare(ctx context.Context, itemID, grantee string, perm sharing.Permission, ttl time.Duration) (*sharing.Grant, error)
	RevokeShare(ctx context.Context, grantID string) error
	ListGrants(ctx context.Context, itemID string) ([]sharing.Grant, error)
	ListReceived(ctx context.Context) ([]gs.ReceivedItem, error)
	IssueLink(ctx context.Context, req gs.IssueLinkRequest) (*gs.IssueLinkResponse, error)
	CheckBreaches(ctx context.Context, itemIDs []string) ([]gs.BreachResult, error)
	ListAudit(ctx context.Context, limit int) ([]audit.Entry, error)
	Close() error
}

type LinkAPI interface {
	Peek(ctx context.Context, url string) (*links.Metadata, error)
	Consume(ctx context.Context, url string) (*links.Payload, error)
}

type BreachChecker interface {
	Check(ctx context.Context, secret string) breach.Result
	CheckBatch(ctx context.Context, secrets []string, onProgress func(breach.Progress)) []breach.Result
}

// App carries the collaborators shared by every command.
type App struct {
	config *config.Config
	vault  VaultAPI
	links  LinkAPI
	breach BreachChecker
	reader *bufio.Reader
}

// connect builds the network clients from the loaded config. Collaborators
// already set (by tests) are left alone.
func (a *App) connect() error {
	if a.vault == nil {
		c, err := client.NewGRPCClient(a.config.ServerEndpointAddr, a.config.AccessToken, a.config.RequestTimeout)
		if err != nil {
			return err
		}
		a.vault = c
	}
	if a.links == nil {
		a.links = client.NewLinkClient(a.config.RequestTimeout)
	}
	if a.breach == nil {
		a.breach = breach.NewClient(breach.Config{
			BaseURL: a.config.BreachBaseURL,
			Timeout: a.config.BreachTimeout,
		}, logging.New("warn", "text", os.Stderr))
	}
	return nil
}

func (a *App) close() {
	if a.vault != nil {
		_ = a.vault.Close()
	}
}

// input returns the reader for interactive prompts, shared by all prompts of
// one command run.
func (a *App) input(in io.Reader) *bufio.Reader {
	if a.reader == nil {
		a.reader = bufio.NewReader(in)
	}
	return a.reader
}
