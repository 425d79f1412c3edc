package trips

import (
	"context"
	"errors"
	"sync"

	"github.com/example/trip-capture/internal/tripstate"
)

var ErrTripNotFound = errors.New("trip not found")

// Store defines persistence operations for trips.
type Store interface {
	CreateTrip(ctx context.Context, t *Trip) error
	GetTrip(ctx context.Context, id string) (*Trip, error)
	SetLocation(ctx context.Context, tripID string, which tripstate.CaptureContext, loc CapturedLocation) error
	UpdateStatus(ctx context.Context, tripID string, status tripstate.Status) error
	SetPaymentHold(ctx context.Context, tripID, holdID string, fareEstimate int64) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*Trip)}
}

func (m *MemoryStore) CreateTrip(_ context.Context, t *Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (*Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrTripNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) SetLocation(_ context.Context, tripID string, which tripstate.CaptureContext, loc CapturedLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	if which == tripstate.ContextDestination {
		t.Destination = loc
	} else {
		t.Origin = loc
	}
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, tripID string, status tripstate.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	t.Status = status
	return nil
}

func (m *MemoryStore) SetPaymentHold(_ context.Context, tripID, holdID string, fareEstimate int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrTripNotFound
	}
	t.PaymentHold = holdID
	t.FareEstimate = fareEstimate
	return nil
}
