package drafts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kuraos/models"

	"github.com/go-redis/redis/v8"
)

const draftPrefix = "booking:draft:"

// RedisDraftStore keeps booking drafts as JSON with a sliding TTL, so an
// idle session expires while an active one survives reloads and restarts.
type RedisDraftStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDraftStore(client *redis.Client, ttl time.Duration) *RedisDraftStore {
	return &RedisDraftStore{client: client, ttl: ttl}
}

// Load returns nil, nil when the session has no draft.
func (s *RedisDraftStore) Load(ctx context.Context, sessionID string) (*models.SagaDraft, error) {
	data, err := s.client.Get(ctx, draftPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking draft: %w", err)
	}
	var draft models.SagaDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("corrupt booking draft %s: %w", sessionID, err)
	}
	return &draft, nil
}

func (s *RedisDraftStore) Save(ctx context.Context, draft models.SagaDraft) error {
	b, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, draftPrefix+draft.SessionID, b, s.ttl).Err()
}

func (s *RedisDraftStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, draftPrefix+sessionID).Err()
}
