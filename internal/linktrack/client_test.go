package linktrack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-agent/internal/common/config"
	"mesh-agent/internal/common/logger"
)

func TestTrack_ReturnsTrackedURL(t *testing.T) {
	var got trackRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/links", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(trackResponse{TrackedURL: "https://trk.example/abc123"})
	}))
	defer server.Close()

	c := NewClient(config.LinkTrackerConfig{BaseURL: server.URL}, logger.NewNoOpLogger())

	tracked := c.Track(context.Background(), "c1", "https://market.example/p1", map[string]string{"flow": "panel"})

	assert.Equal(t, "https://trk.example/abc123", tracked)
	assert.Equal(t, "c1", got.Identity)
	assert.Equal(t, "https://market.example/p1", got.URL)
	assert.Equal(t, "panel", got.Metadata["flow"])
}

func TestTrack_DegradesToRawURLOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(config.LinkTrackerConfig{BaseURL: server.URL}, logger.NewNoOpLogger())

	tracked := c.Track(context.Background(), "c1", "https://market.example/p1", nil)

	assert.Equal(t, "https://market.example/p1", tracked)
}

func TestTrack_DegradesToRawURLWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(config.LinkTrackerConfig{BaseURL: server.URL}, logger.NewNoOpLogger())

	tracked := c.Track(context.Background(), "c1", "https://market.example/p1", nil)

	assert.Equal(t, "https://market.example/p1", tracked)
}

func TestTrack_UnconfiguredPassesThrough(t *testing.T) {
	c := NewClient(config.LinkTrackerConfig{}, logger.NewNoOpLogger())

	tracked := c.Track(context.Background(), "c1", "https://market.example/p1", nil)

	assert.Equal(t, "https://market.example/p1", tracked)
}
