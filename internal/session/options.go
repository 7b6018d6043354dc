package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/storefront-cart/internal/domain"
	"github.com/utafrali/storefront-cart/internal/productdata"
)

// DefaultDebounce is the quiet period before a quantity change is committed.
const DefaultDebounce = 300 * time.Millisecond

// Scope selects how pending quantity commits share debounce slots.
type Scope int

const (
	// ScopeItem gives every line item its own slot. Bursts on one item
	// coalesce, edits on different items commit independently.
	ScopeItem Scope = iota

	// ScopeSession uses a single slot for the whole session: scheduling a
	// commit for any item cancels whatever commit is pending, even for a
	// different item.
	ScopeSession
)

// ParseScope maps "item" or "session" to a Scope.
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "item", "":
		return ScopeItem, true
	case "session":
		return ScopeSession, true
	default:
		return ScopeItem, false
	}
}

func (s Scope) String() string {
	if s == ScopeSession {
		return "session"
	}
	return "item"
}

// Display is the presentation surface a session reports to.
type Display interface {
	// SetQuantity shows quantity for the line item at position.
	SetQuantity(position, quantity int)
	// SetCount updates the cart count badge.
	SetCount(count int)
	// Alert shows a blocking message to the shopper.
	Alert(message string)
}

// Notifier is told about mutations that reached the basket API.
type Notifier interface {
	QuantityCommitted(ctx context.Context, sessionID string, item domain.LineItem, quantity int) error
	ItemsDeleted(ctx context.Context, sessionID string, targets []domain.DeleteTarget) error
}

type nopDisplay struct{}

func (nopDisplay) SetQuantity(int, int) {}
func (nopDisplay) SetCount(int)         {}
func (nopDisplay) Alert(string)         {}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session identifier used in logs and events.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithScope selects the debounce slot scope.
func WithScope(scope Scope) Option {
	return func(s *Session) { s.scope = scope }
}

// WithDisplay attaches the presentation surface.
func WithDisplay(d Display) Option {
	return func(s *Session) { s.display = d }
}

// WithNotifier attaches a mutation notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithEnricher replaces the default uncached product data enricher.
func WithEnricher(e *productdata.Enricher) Option {
	return func(s *Session) { s.enricher = e }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}
