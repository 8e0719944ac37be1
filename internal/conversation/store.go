package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

const keyPrefix = "conversation:"

// Store persists one JSON document per customer identity. Conversations have
// no TTL: their lifetime is the customer relationship.
type Store struct {
	client *redis.Client
	logger logger.Logger
}

func NewStore(client *redis.Client, log logger.Logger) *Store {
	return &Store{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "conversation-store"}),
	}
}

func key(identity string) string {
	return keyPrefix + identity
}

// Get loads a conversation, returning a fresh zero-state one for unknown
// identities.
func (s *Store) Get(ctx context.Context, identity string) (*models.Conversation, error) {
	raw, err := s.client.Get(ctx, key(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return &models.Conversation{
			Identity: identity,
			Stage:    models.StageStart,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", identity, err)
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		// A corrupted document must not wedge the customer forever.
		s.logger.Error("conversation document corrupted, resetting", map[string]interface{}{
			"identity": identity, "error": err.Error(),
		})
		return &models.Conversation{
			Identity: identity,
			Stage:    models.StageStart,
		}, nil
	}
	return &conv, nil
}

// Save writes the whole document. Within one turn the pipeline mutates the
// struct and saves once at the end; last write wins (per-identity
// serialization is the channel layer's job).
func (s *Store) Save(ctx context.Context, conv *models.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", conv.Identity, err)
	}
	if err := s.client.Set(ctx, key(conv.Identity), raw, 0).Err(); err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.Identity, err)
	}
	return nil
}

// Update applies a partial-field patch with explicit shallow-merge
// semantics: each top-level field in the patch replaces the stored field
// wholesale. Nested objects are NOT deep-merged — a patch carrying "specs"
// replaces the entire specs object.
func (s *Store) Update(ctx context.Context, identity string, patch map[string]interface{}) error {
	k := key(identity)

	doc := make(map[string]interface{})
	raw, err := s.client.Get(ctx, k).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load conversation %s: %w", identity, err)
	}
	if err == nil {
		if uerr := json.Unmarshal([]byte(raw), &doc); uerr != nil {
			s.logger.Error("conversation document corrupted, patch starts fresh", map[string]interface{}{
				"identity": identity, "error": uerr.Error(),
			})
			doc = make(map[string]interface{})
		}
	}

	doc["identity"] = identity
	for field, value := range patch {
		doc[field] = value
	}
	doc["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", identity, err)
	}
	if err := s.client.Set(ctx, k, merged, 0).Err(); err != nil {
		return fmt.Errorf("save conversation %s: %w", identity, err)
	}
	return nil
}
