package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	attempts []*DeliveryAttempt
	failWith error
}

func newMemStore() *memStore {
	return &memStore{subs: map[string]*Subscription{}}
}

func (m *memStore) InsertSubscription(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	c := *s
	m.subs[s.ID] = &c
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, tenantID, id string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNoRows
	}
	c := *s
	return &c, nil
}

func (m *memStore) ListSubscriptions(_ context.Context, tenantID string, page PageRequest) ([]*Subscription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Subscription
	for _, s := range m.subs {
		if s.TenantID == tenantID {
			c := *s
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Normalize().Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *memStore) FindActiveByEvent(_ context.Context, tenantID, event string) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Subscription
	for _, s := range m.subs {
		if s.TenantID == tenantID && s.IsActive && s.Subscribes(event) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSubscription(_ context.Context, tenantID, id string, in UpdateInput, now time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNoRows
	}
	if in.URL != nil {
		s.URL = *in.URL
	}
	if in.Events != nil {
		s.Events = *in.Events
	}
	if in.Description != nil {
		s.Description = *in.Description
	}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	s.UpdatedAt = now
	c := *s
	return &c, nil
}

func (m *memStore) UpdateSecret(_ context.Context, tenantID, id, secret string, now time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNoRows
	}
	s.Secret = secret
	s.UpdatedAt = now
	c := *s
	return &c, nil
}

func (m *memStore) DeleteSubscription(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID {
		return ErrNoRows
	}
	delete(m.subs, id)
	return nil
}

func (m *memStore) InsertAttempt(_ context.Context, a *DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.attempts = append(m.attempts, &c)
	return nil
}

func (m *memStore) ListAttempts(_ context.Context, tenantID, subscriptionID string, page PageRequest) ([]*DeliveryAttempt, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.TenantID == tenantID && a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Normalize().Limit
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}
