package http

import (
	"sync"

	"github.com/utafrali/storefront-cart/internal/session"
)

var _ session.Display = (*Surface)(nil)

// Surface is the server-side stand-in for a cart page. The session reports
// quantities and the badge count to it. Alerts travel back as the error of
// the request that raised them, so Surface does not hold any.
type Surface struct {
	mu         sync.Mutex
	quantities map[int]int
	count      int
}

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{quantities: make(map[int]int)}
}

// SetQuantity implements session.Display.
func (s *Surface) SetQuantity(position, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantities[position] = quantity
}

// SetCount implements session.Display.
func (s *Surface) SetCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = count
}

// Alert implements session.Display.
func (s *Surface) Alert(string) {}

// Count returns the last reported badge count.
func (s *Surface) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Quantity returns the last quantity shown at position.
func (s *Surface) Quantity(position int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quantities[position]
	return q, ok
}
