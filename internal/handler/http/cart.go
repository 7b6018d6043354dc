package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-cart/internal/domain"
	"github.com/utafrali/storefront-cart/internal/session"
	apperrors "github.com/utafrali/storefront-cart/pkg/errors"
	"github.com/utafrali/storefront-cart/pkg/httputil"
	"github.com/utafrali/storefront-cart/pkg/logger"
	"github.com/utafrali/storefront-cart/pkg/validator"
)

// htmx events sent in the HX-Trigger response header.
const (
	EventRefetch = "cart:refetch"
	EventAlert   = "cart:alert"
)

// BasketTokenHeader may carry the visitor's basket token instead of the body.
const BasketTokenHeader = "X-Basket-Token"

// Sessions is the session store the handlers work against.
type Sessions interface {
	Create(ctx context.Context, token string, opts ...session.Option) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// CartHandler exposes cart sessions to the storefront page.
type CartHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions Sessions, logger *slog.Logger) *CartHandler {
	return &CartHandler{sessions: sessions, logger: logger}
}

// --- Request DTOs ---

// CreateSessionRequest is the JSON body of POST /api/v1/cart/sessions.
type CreateSessionRequest struct {
	BasketToken string `json:"basket_token" validate:"required,max=512"`
}

// QuantityRequest carries the raw value of the quantity input. An empty value
// means 1.
type QuantityRequest struct {
	Quantity string `json:"quantity" validate:"omitempty,numeric,max=9"`
}

// --- Response DTOs ---

type cartView struct {
	SessionID string                       `json:"session_id"`
	Items     []domain.LineItem            `json:"items"`
	Count     int                          `json:"count"`
	Products  map[int64]domain.ProductData `json:"products,omitempty"`
}

func newCartView(sess *session.Session) cartView {
	cart := sess.Cart()
	return cartView{
		SessionID: sess.ID(),
		Items:     cart.Items,
		Count:     cart.Count,
		Products:  cart.Products,
	}
}

// --- Handlers ---

// CreateSession handles POST /api/v1/cart/sessions
func (h *CartHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	req := CreateSessionRequest{BasketToken: r.Header.Get(BasketTokenHeader)}
	if req.BasketToken == "" {
		if err := validator.DecodeAndValidate(w, r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	sess, err := h.sessions.Create(r.Context(), req.BasketToken, session.WithDisplay(NewSurface()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/cart/sessions/"+sess.ID())
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: newCartView(sess)})
}

// GetSession handles GET /api/v1/cart/sessions/{sessionId}
func (h *CartHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(sess)})
}

// OpenCart handles POST /api/v1/cart/sessions/{sessionId}/open. Opening the
// cart layer reloads the basket from the platform.
func (h *CartHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if !sess.UpdateCart(r.Context()) {
		httputil.WriteError(w, r, apperrors.Unavailable("basket api", errors.New("cart refresh failed")), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(sess)})
}

// ChangeQuantity handles PUT /api/v1/cart/sessions/{sessionId}/items/{position}/quantity
func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	position, ok := parsePosition(w, r)
	if !ok {
		return
	}
	quantity, err := readQuantity(w, r)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	h.mutate(w, r, position, session.SetTo(quantity))
}

// IncreaseQuantity handles POST /api/v1/cart/sessions/{sessionId}/items/{position}/increase
func (h *CartHandler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	position, ok := parsePosition(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, position, session.Increment())
}

// DecreaseQuantity handles POST /api/v1/cart/sessions/{sessionId}/items/{position}/decrease
func (h *CartHandler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	position, ok := parsePosition(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, position, session.Decrement())
}

// DeleteItem handles DELETE /api/v1/cart/sessions/{sessionId}/items/{position}.
// The session reloads the basket after every delete. Removing the last item
// also asks the page for a full refresh.
func (h *CartHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	position, ok := parsePosition(w, r)
	if !ok {
		return
	}
	sess := sessionFromContext(r.Context())
	ctx := r.Context()

	item, err := sess.FindItem(position)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	wasLast := len(sess.Items()) == 1

	if !sess.DeleteItems(ctx, item) {
		httputil.WriteError(w, r, apperrors.Unavailable("basket api", errors.New("delete cart item failed")), h.logger)
		return
	}

	if !sess.UpdateCart(ctx) {
		logger.FromContext(ctx).WarnContext(ctx, "cart refresh after delete failed",
			slog.Int("position", position),
		)
	}
	if wasLast {
		w.Header().Set("HX-Refresh", "true")
	}

	setTrigger(w, map[string]any{EventRefetch: true})
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(sess)})
}

// DeleteSession handles DELETE /api/v1/cart/sessions/{sessionId}
func (h *CartHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := h.sessions.Delete(sess.ID()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// mutate applies change to the item at position and translates the outcome
// into a response. A refused change is a 422 carrying the alert; a commit the
// basket API did not take is a 503.
func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, position int, change session.Change) {
	sess := sessionFromContext(r.Context())

	err := sess.Apply(r.Context(), position, change)
	switch {
	case err == nil:
		setTrigger(w, map[string]any{EventRefetch: true})
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(sess)})
	case errors.Is(err, apperrors.ErrBelowMinimum):
		setTrigger(w, map[string]any{EventAlert: map[string]string{"message": domain.MinQuantityMsg}})
		httputil.WriteError(w, r, err, h.logger)
	case r.Context().Err() != nil:
		// The client went away while the commit was pending.
	case errors.Is(err, session.ErrCommitFailed):
		httputil.WriteError(w, r, apperrors.Unavailable("basket api", err), h.logger)
	default:
		httputil.WriteError(w, r, err, h.logger)
	}
}

func parsePosition(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "position")
	position, err := strconv.Atoi(raw)
	if err != nil || position < 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "invalid position: " + raw},
		})
		return 0, false
	}
	return position, true
}

// readQuantity reads the quantity input from a JSON body or an htmx form post.
func readQuantity(w http.ResponseWriter, r *http.Request) (int, error) {
	var req QuantityRequest
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, validator.MaxBodyBytes)
		req.Quantity = strings.TrimSpace(r.PostFormValue("quantity"))
		if err := validator.Validate(req); err != nil {
			return 0, err
		}
	} else if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		return 0, err
	}

	if strings.TrimSpace(req.Quantity) == "" {
		return domain.MinQuantity, nil
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(req.Quantity))
	if err != nil {
		return 0, apperrors.InvalidInput("quantity must be a whole number")
	}
	return quantity, nil
}

func setTrigger(w http.ResponseWriter, events map[string]any) {
	raw, err := json.Marshal(events)
	if err != nil {
		return
	}
	w.Header().Set("HX-Trigger", string(raw))
}
