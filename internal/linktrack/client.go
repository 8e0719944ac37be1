package linktrack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mesh-agent/internal/common/config"
	commonhttp "mesh-agent/internal/common/http"
	"mesh-agent/internal/common/logger"
)

// Client wraps outbound marketplace URLs in tracked links so clicks can be
// attributed to conversations. Tracking is best-effort: on any failure the
// raw URL goes out instead, degraded but functional.
type Client struct {
	http    *commonhttp.Client
	baseURL string
	logger  logger.Logger
}

func NewClient(cfg config.LinkTrackerConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:    commonhttp.NewClient(timeout),
		baseURL: cfg.BaseURL,
		logger:  log.WithFields(map[string]interface{}{"component": "link-tracker"}),
	}
}

type trackRequest struct {
	Identity string            `json:"identity"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type trackResponse struct {
	TrackedURL string `json:"trackedUrl"`
}

// Track registers the URL and returns its tracked form.
func (c *Client) Track(ctx context.Context, identity, url string, metadata map[string]string) string {
	if c.baseURL == "" {
		return url
	}

	body, err := json.Marshal(trackRequest{Identity: identity, URL: url, Metadata: metadata})
	if err != nil {
		return url
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/links", bytes.NewReader(body))
	if err != nil {
		return url
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		c.logger.Warn("link tracking failed, sending raw url", map[string]interface{}{
			"identity": identity, "error": err.Error(),
		})
		return url
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Warn("link tracker returned non-success status", map[string]interface{}{
			"identity": identity, "status": resp.StatusCode,
		})
		return url
	}

	var tr trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.TrackedURL == "" {
		return url
	}
	return tr.TrackedURL
}
