package booking

import (
	"context"
	"sync"
	"time"

	"kuraos/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionService keeps one controller per live booking session and rehydrates
// sessions from the draft store when this process has not seen them.
type SessionService interface {
	Start(ctx context.Context) (*Controller, error)
	Get(ctx context.Context, sessionID string) (*Controller, error)
	Forget(ctx context.Context, sessionID string) error
}

// DefaultSessionService caches live controllers in memory. The draft store
// is the source of truth: a session whose draft expired is gone even if its
// controller is still cached, and controllers idle for longer than IdleTTL
// are evicted (a later request rehydrates them from the draft).
type DefaultSessionService struct {
	Deps    Dependencies
	Opts    Options
	IdleTTL time.Duration

	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	lastSweep time.Time
}

type sessionEntry struct {
	ctrl     *Controller
	lastUsed time.Time
}

func NewSessionService(deps Dependencies, opts Options) *DefaultSessionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &DefaultSessionService{
		Deps:     deps,
		Opts:     opts.withDefaults(),
		IdleTTL:  30 * time.Minute,
		sessions: make(map[string]*sessionEntry),
	}
}

func (s *DefaultSessionService) Start(ctx context.Context) (*Controller, error) {
	ctrl := NewController(uuid.New().String(), s.Deps, s.Opts)
	ctrl.commit(ctx, func(*models.SagaDraft) {})

	s.mu.Lock()
	now := s.Opts.Now()
	s.sweepLocked(now)
	s.sessions[ctrl.SessionID()] = &sessionEntry{ctrl: ctrl, lastUsed: now}
	s.mu.Unlock()

	s.Deps.Logger.Info("booking session started", zap.String("sessionId", ctrl.SessionID()))
	return ctrl, nil
}

func (s *DefaultSessionService) Get(ctx context.Context, sessionID string) (*Controller, error) {
	s.mu.Lock()
	entry, found := s.sessions[sessionID]
	s.mu.Unlock()

	var draft *models.SagaDraft
	if s.Deps.Drafts != nil {
		loaded, err := s.Deps.Drafts.Load(ctx, sessionID)
		switch {
		case err != nil && found:
			s.Deps.Logger.Warn("draft store unavailable; serving cached session",
				zap.String("sessionId", sessionID), zap.Error(err))
		case err != nil:
			return nil, err
		case loaded == nil:
			if found {
				s.evict(sessionID, entry)
			}
			return nil, models.NewSagaError(models.ErrSessionNotFound, "booking session not found or expired")
		}
		draft = loaded
	}

	if found {
		s.touch(entry)
		return entry.ctrl, nil
	}
	if draft == nil {
		return nil, models.NewSagaError(models.ErrSessionNotFound, "booking session not found")
	}

	ctrl := newController(*draft, s.Deps, s.Opts)
	if err := ctrl.reconcile(ctx); err != nil {
		s.Deps.Logger.Warn("could not reconcile resumed session", zap.String("sessionId", sessionID), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Opts.Now()
	s.sweepLocked(now)
	// Another request may have rehydrated the same session meanwhile.
	if existing, found := s.sessions[sessionID]; found {
		existing.lastUsed = now
		return existing.ctrl, nil
	}
	s.sessions[sessionID] = &sessionEntry{ctrl: ctrl, lastUsed: now}
	return ctrl, nil
}

// Forget drops a session from memory and the draft store. Bookings are not
// touched.
func (s *DefaultSessionService) Forget(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.Deps.Drafts == nil {
		return nil
	}
	return s.Deps.Drafts.Delete(ctx, sessionID)
}

// Cached reports how many controllers are held in memory.
func (s *DefaultSessionService) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *DefaultSessionService) touch(entry *sessionEntry) {
	s.mu.Lock()
	entry.lastUsed = s.Opts.Now()
	s.mu.Unlock()
}

// evict removes entry only if it is still the cached one for sessionID.
func (s *DefaultSessionService) evict(sessionID string, entry *sessionEntry) {
	s.mu.Lock()
	if s.sessions[sessionID] == entry {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
}

// sweepLocked drops controllers idle for longer than IdleTTL. It runs at most
// once per half TTL; busy controllers are kept.
func (s *DefaultSessionService) sweepLocked(now time.Time) {
	if s.IdleTTL <= 0 || now.Sub(s.lastSweep) < s.IdleTTL/2 {
		return
	}
	s.lastSweep = now
	for id, entry := range s.sessions {
		if now.Sub(entry.lastUsed) > s.IdleTTL && !entry.ctrl.Snapshot().Busy {
			delete(s.sessions, id)
		}
	}
}
