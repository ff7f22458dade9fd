package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOrderStore keeps orders in process memory. Records are cloned on the way in and out.
type MemoryOrderStore struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]*Order
	sessions map[string]uuid.UUID
	now      func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:   make(map[uuid.UUID]*Order),
		sessions: make(map[string]uuid.UUID),
		now:      time.Now,
	}
}

func (s *MemoryOrderStore) Create(_ context.Context, order *Order) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[order.StripeSessionID]; exists {
		return nil, ErrDuplicateSession
	}

	record := prepareForCreate(order, s.now())
	s.orders[record.PrivateID] = record
	s.sessions[record.StripeSessionID] = record.PrivateID
	return record.Clone(), nil
}

func (s *MemoryOrderStore) FindByID(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (s *MemoryOrderStore) FindByStripeSessionID(_ context.Context, sessionID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.orders[id].Clone(), nil
}

func (s *MemoryOrderStore) Update(_ context.Context, id uuid.UUID, patch OrderPatch) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	updated := order.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.now().UTC()
	s.orders[id] = updated
	return updated.Clone(), nil
}

func (s *MemoryOrderStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	delete(s.sessions, order.StripeSessionID)
	delete(s.orders, id)
	return true, nil
}

func (s *MemoryOrderStore) FindAll(_ context.Context, limit int) ([]*Order, error) {
	s.mu.RLock()
	orders := make([]*Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(orders)
	return applyLimit(orders, limit), nil
}

func (s *MemoryOrderStore) FindByUserID(_ context.Context, userID string, excludeCart bool) ([]*Order, error) {
	s.mu.RLock()
	orders := make([]*Order, 0)
	for _, order := range s.orders {
		if order.UserID != userID {
			continue
		}
		if excludeCart && order.Status == StatusCart {
			continue
		}
		orders = append(orders, order.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(orders)
	return orders, nil
}

func (s *MemoryOrderStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryOrderStore) Close() error {
	return nil
}
