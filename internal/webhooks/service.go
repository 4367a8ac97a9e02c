package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
)

// Store is the persistence the registry needs. *Repository implements it.
type Store interface {
	InsertSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, tenantID, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string, page PageRequest) ([]*Subscription, int, error)
	FindActiveByEvent(ctx context.Context, tenantID, event string) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, tenantID, id string, in UpdateInput, now time.Time) (*Subscription, error)
	UpdateSecret(ctx context.Context, tenantID, id, secret string, now time.Time) (*Subscription, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error
	InsertAttempt(ctx context.Context, a *DeliveryAttempt) error
	ListAttempts(ctx context.Context, tenantID, subscriptionID string, page PageRequest) ([]*DeliveryAttempt, int, error)
}

// Invalidator drops cached matching data for a tenant after a write.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithInvalidator registers a cache to invalidate on writes.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) { s.invalidator = inv }
}

// WithMetrics records registry metrics.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithSecretGenerator overrides GenerateSecret.
func WithSecretGenerator(gen func() (string, error)) ServiceOption {
	return func(s *Service) { s.newSecret = gen }
}

// Service is the subscription registry. Every operation is scoped to a tenant.
type Service struct {
	store       Store
	invalidator Invalidator
	metrics     *observability.Metrics
	now         func() time.Time
	newSecret   func() (string, error)
	newID       func() string
	logger      *zap.SugaredLogger
}

// NewService creates a registry over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		now:       time.Now,
		newSecret: GenerateSecret,
		newID:     func() string { return uuid.NewString() },
		logger:    logger.NewLogger("webhooks"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new active subscription. The returned subscription
// carries the secret; no later read does.
func (s *Service) Create(ctx context.Context, tenantID, actorID string, in CreateInput) (*Subscription, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	secret, err := s.newSecret()
	if err != nil {
		return nil, Internal(err, "failed to generate secret")
	}

	now := s.now().UTC()
	sub := &Subscription{
		ID:          s.newID(),
		TenantID:    tenantID,
		URL:         in.URL,
		Events:      in.Events,
		Secret:      secret,
		IsActive:    true,
		Description: in.Description,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		return nil, Internal(err, "failed to create subscription")
	}
	s.invalidate(ctx, tenantID)
	s.metrics.SubscriptionCreated(ctx)

	s.logger.Infow("Subscription created",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
		"events", sub.Events,
		"created_by", actorID,
	)
	return sub, nil
}

// List returns a page of the tenant's subscriptions with secrets redacted.
func (s *Service) List(ctx context.Context, tenantID string, page PageRequest) (*Page[*Subscription], error) {
	page = page.Normalize()
	subs, total, err := s.store.ListSubscriptions(ctx, tenantID, page)
	if err != nil {
		return nil, Internal(err, "failed to list subscriptions")
	}

	items := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		items = append(items, sub.Redacted())
	}
	return &Page[*Subscription]{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// Get returns one subscription with its secret redacted.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Subscription, error) {
	sub, err := s.get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return sub.Redacted(), nil
}

// Update applies a partial update. Fields absent from in are left untouched.
func (s *Service) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*Subscription, error) {
	if !validID(id) {
		return nil, NotFound("subscription")
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	sub, err := s.store.UpdateSubscription(ctx, tenantID, id, in, s.now().UTC())
	if errors.Is(err, ErrNoRows) {
		return nil, NotFound("subscription")
	}
	if err != nil {
		return nil, Internal(err, "failed to update subscription")
	}
	s.invalidate(ctx, tenantID)

	s.logger.Infow("Subscription updated",
		"tenant_id", tenantID,
		"subscription_id", id,
		"is_active", sub.IsActive,
	)
	return sub.Redacted(), nil
}

// Delete removes a subscription. Jobs already enqueued keep their snapshot.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if !validID(id) {
		return NotFound("subscription")
	}
	err := s.store.DeleteSubscription(ctx, tenantID, id)
	if errors.Is(err, ErrNoRows) {
		return NotFound("subscription")
	}
	if err != nil {
		return Internal(err, "failed to delete subscription")
	}
	s.invalidate(ctx, tenantID)

	s.logger.Infow("Subscription deleted", "tenant_id", tenantID, "subscription_id", id)
	return nil
}

// RotateSecret issues a new secret. The result is the only place it is returned.
func (s *Service) RotateSecret(ctx context.Context, tenantID, id string) (*Subscription, error) {
	if !validID(id) {
		return nil, NotFound("subscription")
	}
	secret, err := s.newSecret()
	if err != nil {
		return nil, Internal(err, "failed to generate secret")
	}

	sub, err := s.store.UpdateSecret(ctx, tenantID, id, secret, s.now().UTC())
	if errors.Is(err, ErrNoRows) {
		return nil, NotFound("subscription")
	}
	if err != nil {
		return nil, Internal(err, "failed to rotate secret")
	}
	s.invalidate(ctx, tenantID)

	s.logger.Infow("Subscription secret rotated", "tenant_id", tenantID, "subscription_id", id)
	return sub, nil
}

// ListDeliveries returns the delivery log of a subscription, most recent
// first. Ownership is checked before any row is read.
func (s *Service) ListDeliveries(ctx context.Context, tenantID, id string, page PageRequest) (*Page[*DeliveryAttempt], error) {
	if _, err := s.get(ctx, tenantID, id); err != nil {
		return nil, err
	}

	page = page.Normalize()
	attempts, total, err := s.store.ListAttempts(ctx, tenantID, id, page)
	if err != nil {
		return nil, Internal(err, "failed to list deliveries")
	}
	return &Page[*DeliveryAttempt]{Items: attempts, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// RecordAttempt appends one row to the delivery log.
func (s *Service) RecordAttempt(ctx context.Context, a *DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if err := s.store.InsertAttempt(ctx, a); err != nil {
		return Internal(err, "failed to record delivery attempt")
	}
	return nil
}

func (s *Service) get(ctx context.Context, tenantID, id string) (*Subscription, error) {
	if !validID(id) {
		return nil, NotFound("subscription")
	}
	sub, err := s.store.GetSubscription(ctx, tenantID, id)
	if errors.Is(err, ErrNoRows) {
		return nil, NotFound("subscription")
	}
	if err != nil {
		return nil, Internal(err, "failed to get subscription")
	}
	return sub, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warnw("Failed to invalidate subscription cache", "tenant_id", tenantID, "error", err)
	}
}

// validID accepts only the 36-character hyphenated form. uuid.Parse also
// takes urn:uuid: and braced forms that the database rejects.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
