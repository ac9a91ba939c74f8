package core

// HTTP fallback for sparse hub queries. Used by backfill tooling only; the
// sync hot path always goes through the gRPC client.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

const httpRequestTimeout = 30 * time.Second

// HubHTTPClient wraps the hub's JSON endpoints.
type HubHTTPClient struct {
	base   string
	client *http.Client
	logger *logrus.Logger
}

// NewHubHTTPClient builds a client for the given base endpoint
// (e.g. "http://localhost:3381").
func NewHubHTTPClient(endpoint string, lg *logrus.Logger) *HubHTTPClient {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return &HubHTTPClient{
		base:   strings.TrimRight(endpoint, "/"),
		client: &http.Client{Timeout: httpRequestTimeout},
		logger: lg,
	}
}

func (c *HubHTTPClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return utils.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return utils.Wrap(err, "hub http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hub http %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Wrap(err, "decode hub response")
	}
	return nil
}

// GetLinksByFid fetches the link messages for one fid. limit <= 0 uses the
// hub default.
func (c *HubHTTPClient) GetLinksByFid(ctx context.Context, fid uint64, limit int) ([]*UserMessage, error) {
	q := url.Values{}
	q.Set("fid", fmt.Sprintf("%d", fid))
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out messagesResponse
	if err := c.getJSON(ctx, "/v1/linksByFid", q, &out); err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"fid":  fid,
		"msgs": len(out.Messages),
	}).Debug("fetched links by fid")
	return out.Messages, nil
}

// GetInfo mirrors the gRPC GetInfo over HTTP.
func (c *HubHTTPClient) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	var out GetInfoResponse
	if err := c.getJSON(ctx, "/v1/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
