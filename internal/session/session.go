// Package session implements the cart session controller: an in-memory mirror
// of a visitor's basket that applies quantity changes optimistically and
// commits them to the basket API after a debounce window.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront-cart/internal/basket"
	"github.com/utafrali/storefront-cart/internal/domain"
	"github.com/utafrali/storefront-cart/internal/productdata"
	apperrors "github.com/utafrali/storefront-cart/pkg/errors"
	"github.com/utafrali/storefront-cart/pkg/logger"
)

// Session mirrors one visitor's basket for the lifetime of a page.
//
// items only ever holds what the last successful fetch returned. Quantities
// typed or clicked by the shopper live in shown until the refresh that
// follows their commit.
type Session struct {
	id       string
	api      basket.API
	display  Display
	notifier Notifier
	enricher *productdata.Enricher
	logger   *slog.Logger
	tracer   trace.Tracer
	debounce time.Duration
	scope    Scope

	mu          sync.Mutex
	initialized bool
	closed      bool
	items       []domain.LineItem
	products    map[int64]domain.ProductData
	shown       map[string]int
	pending     map[string]*pendingCommit
}

// pendingCommit is a scheduled quantity update waiting out its debounce window.
type pendingCommit struct {
	timer   *time.Timer
	itemKey string
	out     *outcome
}

// ErrCommitFailed is returned when the basket API did not accept a quantity
// update.
var ErrCommitFailed = errors.New("quantity commit failed")

// outcome is shared by every caller whose change ended up in the same commit.
type outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) settle(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Change computes a new quantity from the one the shopper currently sees.
type Change struct {
	op   string
	next func(current int) (int, error)
}

// SetTo replaces the quantity with quantity. The value is not validated.
func SetTo(quantity int) Change {
	return Change{op: "modify quantity", next: func(int) (int, error) {
		return quantity, nil
	}}
}

// Increment adds one. There is no ceiling.
func Increment() Change {
	return Change{op: "increase quantity", next: func(current int) (int, error) {
		return current + 1, nil
	}}
}

// Decrement subtracts one, refusing to go below domain.MinQuantity.
func Decrement() Change {
	return Change{op: "decrease quantity", next: func(current int) (int, error) {
		if current-1 < domain.MinQuantity {
			return 0, apperrors.BelowMinimum(domain.MinQuantityMsg)
		}
		return current - 1, nil
	}}
}

// New creates a session over api. Call Init before using it.
func New(api basket.API, opts ...Option) *Session {
	s := &Session{
		api:      api,
		display:  nopDisplay{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/utafrali/storefront-cart/internal/session"),
		debounce: DefaultDebounce,
		scope:    ScopeItem,
		products: map[int64]domain.ProductData{},
		shown:    map[string]int{},
		pending:  map[string]*pendingCommit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enricher == nil {
		s.enricher = productdata.NewEnricher(nil, s.logger)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Display returns the presentation surface attached to the session.
func (s *Session) Display() Display { return s.display }

// Init initializes the basket API client and loads the cart.
func (s *Session) Init(ctx context.Context) bool {
	if err := s.api.Init(ctx); err != nil {
		s.log(ctx).ErrorContext(ctx, "cart session init failed",
			slog.String("stage", "api_init"),
			slog.String("error", err.Error()),
		)
		return false
	}

	if !s.UpdateCart(ctx) {
		s.log(ctx).ErrorContext(ctx, "cart session init failed",
			slog.String("stage", "update_cart"),
		)
		return false
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return true
}

// FindItem returns the line item at position.
func (s *Session) FindItem(position int) (domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findItemLocked(position)
}

func (s *Session) findItemLocked(position int) (domain.LineItem, error) {
	if err := s.usableLocked(); err != nil {
		return domain.LineItem{}, err
	}
	if position < 0 || position >= len(s.items) {
		return domain.LineItem{}, apperrors.NotFound("line item at position", strconv.Itoa(position))
	}
	return s.items[position], nil
}

// ChangeQuantity sets the quantity of the item at position. The value is not
// validated.
func (s *Session) ChangeQuantity(ctx context.Context, position, quantity int) bool {
	return s.ExecuteModifyQuantity(ctx, position, quantity)
}

// IncreaseQuantity adds one to the displayed quantity. There is no ceiling.
func (s *Session) IncreaseQuantity(ctx context.Context, position int) bool {
	return s.Apply(ctx, position, Increment()) == nil
}

// DecreaseQuantity subtracts one from the displayed quantity. Going below
// domain.MinQuantity alerts the shopper and sends nothing.
func (s *Session) DecreaseQuantity(ctx context.Context, position int) bool {
	return s.Apply(ctx, position, Decrement()) == nil
}

// ExecuteModifyQuantity shows quantity immediately and commits it once the
// debounce window passes without another change in the same slot. It
// returns after that commit settled; callers whose change was superseded
// receive the outcome of the commit that replaced theirs.
func (s *Session) ExecuteModifyQuantity(ctx context.Context, position, quantity int) bool {
	return s.Apply(ctx, position, SetTo(quantity)) == nil
}

// Apply runs change against the item at position and waits for its commit.
// It resolves the item, computes the new quantity from what the shopper
// currently sees and schedules the commit under one lock, so concurrent
// clicks compound.
//
// The error is the item lookup error, an ErrBelowMinimum AppError when the
// change was refused, ErrCommitFailed, or the context's error when the caller
// stopped waiting.
func (s *Session) Apply(ctx context.Context, position int, change Change) error {
	s.mu.Lock()
	item, err := s.findItemLocked(position)
	if err != nil {
		s.mu.Unlock()
		s.log(ctx).WarnContext(ctx, change.op+" failed",
			slog.Int("position", position),
			slog.String("error", err.Error()),
		)
		return err
	}

	quantity, err := change.next(s.displayedLocked(item))
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, apperrors.ErrBelowMinimum) {
			s.display.Alert(domain.MinQuantityMsg)
		}
		s.log(ctx).InfoContext(ctx, change.op+" rejected",
			slog.Int("position", position),
			slog.String("reason", err.Error()),
		)
		return err
	}

	out := s.scheduleLocked(ctx, position, item, quantity)
	s.mu.Unlock()

	return s.await(ctx, out)
}

func (s *Session) displayedLocked(item domain.LineItem) int {
	if q, ok := s.shown[itemKey(item)]; ok {
		return q
	}
	return item.Quantity
}

func (s *Session) scheduleLocked(ctx context.Context, position int, item domain.LineItem, quantity int) *outcome {
	ik := itemKey(item)
	s.shown[ik] = quantity
	s.display.SetQuantity(position, quantity)

	slot := s.slotKey(ik)
	var out *outcome
	if prev, ok := s.pending[slot]; ok && prev.timer.Stop() {
		out = prev.out
		supersededTotal.Inc()
		s.log(ctx).DebugContext(ctx, "pending quantity commit superseded",
			slog.String("slot", slot),
			slog.String("item", prev.itemKey),
		)
	}
	if out == nil {
		out = newOutcome()
	}

	p := &pendingCommit{itemKey: ik, out: out}
	req := domain.NewQuantityUpdate(item, quantity)
	commitCtx := context.WithoutCancel(ctx)
	p.timer = time.AfterFunc(s.debounce, func() {
		s.fire(commitCtx, slot, p, item, req)
	})
	s.pending[slot] = p
	return out
}

func (s *Session) slotKey(itemKey string) string {
	if s.scope == ScopeSession {
		return ""
	}
	return itemKey
}

func (s *Session) await(ctx context.Context, out *outcome) error {
	select {
	case <-out.done:
		return out.err
	case <-ctx.Done():
		s.log(ctx).WarnContext(ctx, "stopped waiting for quantity commit",
			slog.String("error", ctx.Err().Error()),
		)
		return ctx.Err()
	}
}

// fire runs when a debounce timer expires.
func (s *Session) fire(ctx context.Context, slot string, p *pendingCommit, item domain.LineItem, req domain.UpdateRequest) {
	s.mu.Lock()
	if s.pending[slot] == p {
		delete(s.pending, slot)
	}
	s.mu.Unlock()

	p.out.settle(s.commit(ctx, item, req))
}

// commit sends the update and refreshes the cart. A failed send is logged
// and reported as ErrCommitFailed; a failed refresh after a successful send
// is only logged.
func (s *Session) commit(ctx context.Context, item domain.LineItem, req domain.UpdateRequest) error {
	ctx, span := s.tracer.Start(ctx, "cart.commit_quantity",
		trace.WithAttributes(
			attribute.String("cart.session_id", s.id),
			attribute.String("cart.prod_id", req.ProdID0),
			attribute.Int("cart.quantity", req.Quantity0),
		),
	)
	defer span.End()

	if err := s.api.SetAsyncData(ctx, req); err != nil {
		commitsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log(ctx).ErrorContext(ctx, "quantity commit failed",
			slog.String("prod_id", req.ProdID0),
			slog.Int("quantity", req.Quantity0),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	commitsTotal.WithLabelValues("success").Inc()

	s.log(ctx).InfoContext(ctx, "quantity committed",
		slog.String("prod_id", req.ProdID0),
		slog.Int("quantity", req.Quantity0),
	)

	if s.notifier != nil {
		if err := s.notifier.QuantityCommitted(ctx, s.id, item, req.Quantity0); err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to publish quantity committed event",
				slog.String("error", err.Error()),
			)
		}
	}

	if !s.UpdateCart(ctx) {
		s.log(ctx).WarnContext(ctx, "cart refresh after commit failed")
	}
	return nil
}

// DeleteItems removes one or more line items from the basket. Every item must
// carry a product number and a basket row number; otherwise nothing is sent.
func (s *Session) DeleteItems(ctx context.Context, items ...domain.LineItem) bool {
	if err := s.usable(); err != nil {
		s.log(ctx).WarnContext(ctx, "delete cart items failed",
			slog.String("error", err.Error()),
		)
		return false
	}

	if len(items) == 0 {
		s.log(ctx).ErrorContext(ctx, "delete cart items failed",
			slog.String("error", apperrors.InvalidInput("no basket items given").Error()),
		)
		return false
	}

	targets := make([]domain.DeleteTarget, len(items))
	for i, item := range items {
		t := item.DeleteTarget()
		if !t.Valid() {
			s.log(ctx).ErrorContext(ctx, "delete cart items failed",
				slog.String("error", apperrors.InvalidInput("invalid basket items").Error()),
				slog.Int("index", i),
			)
			return false
		}
		targets[i] = t
	}

	if err := s.api.DeleteCartItems(ctx, domain.DeleteModeA, targets); err != nil {
		s.log(ctx).ErrorContext(ctx, "delete cart items failed",
			slog.Int("count", len(targets)),
			slog.String("error", err.Error()),
		)
		return false
	}

	if s.notifier != nil {
		if err := s.notifier.ItemsDeleted(ctx, s.id, targets); err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to publish items deleted event",
				slog.String("error", err.Error()),
			)
		}
	}

	s.log(ctx).InfoContext(ctx, "cart items deleted", slog.Int("count", len(targets)))
	return true
}

// UpdateCart restores the platform cache and replaces items with a fresh
// fetch. On failure items are left untouched.
func (s *Session) UpdateCart(ctx context.Context) bool {
	if s.isClosed() {
		return false
	}

	if err := s.api.RestoreCache(ctx); err != nil {
		s.log(ctx).ErrorContext(ctx, "cart update failed",
			slog.String("stage", "restore_cache"),
			slog.String("error", err.Error()),
		)
		return false
	}

	items, err := s.api.GetData(ctx)
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "cart update failed",
			slog.String("stage", "get_data"),
			slog.String("error", err.Error()),
		)
		return false
	}
	if items == nil {
		items = []domain.LineItem{}
	}

	products, err := s.enricher.Enrich(ctx, s.api, items)
	if err != nil {
		s.log(ctx).DebugContext(ctx, "product data unavailable",
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	s.items = items
	if products != nil {
		s.products = products
	}
	s.pruneShownLocked()
	s.mu.Unlock()

	s.display.SetCount(len(items))
	return true
}

// pruneShownLocked forgets optimistic quantities that no pending commit backs.
func (s *Session) pruneShownLocked() {
	live := make(map[string]struct{}, len(s.pending))
	for _, p := range s.pending {
		live[p.itemKey] = struct{}{}
	}
	for k := range s.shown {
		if _, ok := live[k]; !ok {
			delete(s.shown, k)
		}
	}
}

// Items returns a copy of the last fetched line items.
func (s *Session) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Cart returns a snapshot of the session's view of the basket, with shown
// quantities in place of fetched ones where a change is pending.
func (s *Session) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.LineItem, len(s.items))
	for i, item := range s.items {
		item.Quantity = s.displayedLocked(item)
		items[i] = item
	}
	products := make(map[int64]domain.ProductData, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	return domain.Cart{Items: items, Count: len(items), Products: products}
}

// Close cancels pending commits and rejects further use. Callers waiting on a
// cancelled commit are released with a Gone error.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for slot, p := range s.pending {
		if p.timer.Stop() {
			p.out.settle(apperrors.Gone("cart session is closed"))
		}
		delete(s.pending, slot)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// usable reports why the session cannot take a mutation, if it cannot.
func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usableLocked()
}

func (s *Session) usableLocked() error {
	if s.closed {
		return apperrors.Gone("cart session is closed")
	}
	if !s.initialized {
		return apperrors.NotInitialized("cart session")
	}
	return nil
}

func (s *Session) log(ctx context.Context) *slog.Logger {
	l := logger.WithContext(ctx, s.logger)
	if s.id != "" && logger.SessionIDFromContext(ctx) == "" {
		l = l.With(slog.String("session_id", s.id))
	}
	return l
}

// itemKey identifies a line item across refreshes.
func itemKey(item domain.LineItem) string {
	return item.ProductKey() + "#" + strconv.FormatInt(item.BasketProductNo, 10)
}
