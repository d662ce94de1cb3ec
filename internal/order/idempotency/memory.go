package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/order"
)

// MemoryStore keeps reservations in process. Used by tests and when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record), now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (order.Reservation, error) {
	now := s.now().UTC()
	id := hashKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || !now.Before(rec.ExpiresAt) {
		s.records[id] = record{Status: statusPending, Fingerprint: fingerprint, ExpiresAt: now.Add(ttlOrDefault(ttl))}
		return order.Reservation{State: order.ReservationNew}, nil
	}
	return reservationFor(rec, fingerprint)
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint, orderID string, ttl time.Duration) error {
	now := s.now().UTC()
	id := hashKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok && rec.Fingerprint != fingerprint {
		return order.ErrIdempotencyMismatch
	}
	s.records[id] = record{
		Status:      statusCompleted,
		Fingerprint: fingerprint,
		OrderID:     orderID,
		ExpiresAt:   now.Add(ttlOrDefault(ttl)),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := hashKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok && rec.Fingerprint == fingerprint && rec.Status == statusPending {
		delete(s.records, id)
	}
	return nil
}

func reservationFor(rec record, fingerprint string) (order.Reservation, error) {
	if rec.Fingerprint != fingerprint {
		return order.Reservation{}, order.ErrIdempotencyMismatch
	}
	if rec.Status == statusCompleted {
		return order.Reservation{State: order.ReservationCompleted, OrderID: rec.OrderID}, nil
	}
	return order.Reservation{State: order.ReservationPending}, nil
}
