package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/links"
)

// LinkClient opens ephemeral share links by URL.
type LinkClient struct {
	http *http.Client
}

func NewLinkClient(timeout time.Duration) *LinkClient {
	return &LinkClient{http: &http.Client{Timeout: timeout}}
}

// Peek reports a link's metadata without using up a view.
func (c *LinkClient) Peek(ctx context.Context, url string) (*links.Metadata, error) {
	md := &links.Metadata{}
	if err := c.do(ctx, http.MethodGet, url, md); err != nil {
		return nil, err
	}
	return md, nil
}

// Consume spends one view and returns the shared payload.
func (c *LinkClient) Consume(ctx context.Context, url string) (*links.Payload, error) {
	pl := &links.Payload{}
	if err := c.do(ctx, http.MethodPost, url, pl); err != nil {
		return nil, err
	}
	return pl, nil
}

func (c *LinkClient) do(ctx context.Context, method, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("bad link url: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("link: %w", common.ErrorNotFound)
	case resp.StatusCode == http.StatusGone && body.Error == "exhausted":
		return fmt.Errorf("link: %w", common.ErrExhausted)
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("link: %w", common.ErrExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("link: rate limited, try again later")
	default:
		return fmt.Errorf("link: unexpected status %s", resp.Status)
	}
}
