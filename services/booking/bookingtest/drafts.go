package bookingtest

import (
	"context"
	"sync"

	"kuraos/models"
)

// Drafts is an in-memory draft store. Load returns nil, nil for unknown
// sessions, like the Redis store does for an expired key.
type Drafts struct {
	mu      sync.Mutex
	drafts  map[string]models.SagaDraft
	SaveErr error
	Saves   int
}

func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[string]models.SagaDraft)}
}

func (d *Drafts) Load(ctx context.Context, sessionID string) (*models.SagaDraft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, found := d.drafts[sessionID]
	if !found {
		return nil, nil
	}
	return &draft, nil
}

func (d *Drafts) Save(ctx context.Context, draft models.SagaDraft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Saves++
	if d.SaveErr != nil {
		return d.SaveErr
	}
	d.drafts[draft.SessionID] = draft
	return nil
}

func (d *Drafts) Delete(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.drafts, sessionID)
	return nil
}
