package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront-cart/internal/basket"
	apperrors "github.com/utafrali/storefront-cart/pkg/errors"
)

// APIFactory builds a basket API client bound to one visitor's basket token.
type APIFactory func(token string) basket.API

// Registry owns the live sessions of the service. Each browser page load
// creates one session and is expected to delete it when the page goes away;
// idle sessions are swept after the configured TTL.
type Registry struct {
	newAPI  APIFactory
	opts    []Option
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates a registry. opts are applied to every session it creates.
func NewRegistry(newAPI APIFactory, idleTTL time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	return &Registry{
		newAPI:   newAPI,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create builds and initializes a session for the visitor holding token.
// Extra options are applied after the registry-wide ones.
func (r *Registry) Create(ctx context.Context, token string, extra ...Option) (*Session, error) {
	id := uuid.New().String()

	opts := make([]Option, 0, len(r.opts)+len(extra)+1)
	opts = append(opts, r.opts...)
	opts = append(opts, extra...)
	opts = append(opts, WithID(id))

	s := New(r.newAPI(token), opts...)
	if !s.Init(ctx) {
		s.Close()
		return nil, apperrors.Unavailable("basket api", errors.New("cart session init failed"))
	}

	r.mu.Lock()
	r.sessions[id] = &entry{session: s, lastSeen: r.now()}
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "cart session created",
		slog.String("session_id", id),
		slog.Int("items", len(s.Items())),
	)
	return s, nil
}

// Get returns the live session with id and marks it as recently used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.Gone("cart session " + id + " does not exist or has expired")
	}
	e.lastSeen = r.now()
	return e.session, nil
}

// Delete closes and forgets the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		activeSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if !ok {
		return apperrors.Gone("cart session " + id + " does not exist or has expired")
	}
	e.session.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many it removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.session)
			delete(r.sessions, id)
		}
	}
	activeSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle cart sessions", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is canceled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	activeSessions.Set(0)
	r.mu.Unlock()

	for _, e := range sessions {
		e.session.Close()
	}
}
