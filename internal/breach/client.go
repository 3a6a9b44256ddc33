// Package breach checks secrets against a k-anonymity range endpoint. Only
// the first five hex characters of a secret's SHA-1 ever leave the process.
package breach

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/cryptox"
	"github.com/dmitrijs2005/keepershare/internal/logging"
)

const prefixLen = 5

const (
	defaultCacheTTL  = 24 * time.Hour
	defaultCacheMax  = 1000
	defaultCacheKeep = 500
)

// Result of a single check. A failed lookup has Count 0 and a non-nil Err and
// must not be read as "not breached".
type Result struct {
	Count     int
	FromCache bool
	Err       error
}

// Breached reports a successful lookup with at least one hit.
func (r Result) Breached() bool { return r.Err == nil && r.Count > 0 }

type Progress struct {
	Current    int
	Total      int
	Percentage float64
}

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	CacheTTL    time.Duration
}

// Observer receives lookup outcomes: cache_hit, remote or error.
type Observer interface {
	BreachLookup(outcome string)
	BreachRemoteLatency(d time.Duration)
}

type Client struct {
	http     *http.Client
	baseURL  string
	limiter  *rate.Limiter
	cache    *cache
	logger   logging.Logger
	observer Observer
	now      func() time.Time
}

func NewClient(cfg Config, logger logging.Logger) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(limit, 1),
		cache:   newCache(ttl, defaultCacheMax, defaultCacheKeep),
		logger:  logger.With("module", "breach"),
		now:     time.Now,
	}
}

func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.BreachLookup(outcome)
	}
}

// Check returns how many times secret appears in the breach corpus. Errors
// are reported in the Result and are never cached.
func (c *Client) Check(ctx context.Context, secret string) Result {
	hash := cryptox.SHA1Hex(secret)
	if n, ok := c.cache.get(hash, c.now()); ok {
		c.observe("cache_hit")
		return Result{Count: n, FromCache: true}
	}

	prefix, suffix := hash[:prefixLen], hash[prefixLen:]
	if err := c.limiter.Wait(ctx); err != nil {
		c.observe("error")
		return Result{Err: fmt.Errorf("rate limiter: %w", err)}
	}

	n, err := c.lookup(ctx, prefix, suffix)
	if err != nil {
		c.logger.Warn(ctx, "breach lookup failed", "prefix", prefix, "error", err)
		c.observe("error")
		return Result{Err: err}
	}

	c.cache.put(hash, n, c.now())
	c.observe("remote")
	return Result{Count: n}
}

// CheckBatch checks secrets one after another. onProgress may be nil.
// Cancelling ctx stops the batch between items; the results gathered so far
// are returned.
func (c *Client) CheckBatch(ctx context.Context, secrets []string, onProgress func(Progress)) []Result {
	results, _ := runBatch(ctx, len(secrets), onProgress, func(i int) (Result, error) {
		return c.Check(ctx, secrets[i]), nil
	})
	return results
}

// runBatch calls check for 0..n-1 in order, reporting progress after each
// one. It stops when ctx is done or at the first error from check.
func runBatch(ctx context.Context, n int, onProgress func(Progress), check func(i int) (Result, error)) ([]Result, error) {
	results := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		r, err := check(i)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		if onProgress != nil {
			onProgress(progress(i+1, n))
		}
	}
	return results, nil
}

func progress(current, total int) Progress {
	return Progress{
		Current:    current,
		Total:      total,
		Percentage: float64(current) * 100 / float64(total),
	}
}

func (c *Client) lookup(ctx context.Context, prefix, suffix string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Add-Padding", "true")

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.observer != nil {
		c.observer.BreachRemoteLatency(time.Since(start))
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: status %d", common.ErrRemoteUnavailable, resp.StatusCode)
	}

	return matchSuffix(resp.Body, suffix)
}

// matchSuffix scans "SUFFIX:COUNT" lines for suffix. Absence means 0.
func matchSuffix(r io.Reader, suffix string) (int, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		s, cnt, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(s, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(cnt))
		if err != nil {
			return 0, fmt.Errorf("%w: bad count %q", common.ErrRemoteUnavailable, cnt)
		}
		return n, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err)
	}
	return 0, nil
}
