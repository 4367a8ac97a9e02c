package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoRows is returned by the repository when a tenant-scoped lookup matches nothing.
var ErrNoRows = errors.New("webhooks: no rows")

const subscriptionColumns = `id, tenant_id, url, events, secret, is_active, description, created_by, created_at, updated_at`

const attemptColumns = `id, subscription_id, tenant_id, job_id, event, payload, url, status_code, response_body,
		       error, attempt, duration_ms, delivered_at, created_at`

// Repository handles subscription and delivery log storage
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new webhook repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertSubscription stores a new subscription
func (r *Repository) InsertSubscription(ctx context.Context, s *Subscription) error {
	eventsJSON, err := json.Marshal(s.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	query := `
		INSERT INTO webhook_subscriptions (
			id, tenant_id, url, events, secret, is_active, description, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.TenantID,
		s.URL,
		string(eventsJSON),
		s.Secret,
		s.IsActive,
		s.Description,
		s.CreatedBy,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription owned by tenantID
func (r *Repository) GetSubscription(ctx context.Context, tenantID, id string) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE tenant_id = $1 AND id = $2`

	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// ListSubscriptions returns a page of subscriptions for a tenant, newest first
func (r *Repository) ListSubscriptions(ctx context.Context, tenantID string, page PageRequest) ([]*Subscription, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_subscriptions WHERE tenant_id = $1`, tenantID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	query := `SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, tenantID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs, err := collectSubscriptions(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// FindActiveByEvent returns the tenant's active subscriptions listing event
func (r *Repository) FindActiveByEvent(ctx context.Context, tenantID, event string) ([]*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE tenant_id = $1 AND is_active = true AND events @> jsonb_build_array($2::text)`

	rows, err := r.db.QueryContext(ctx, query, tenantID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// UpdateSubscription applies the non-nil fields of in and returns the updated row
func (r *Repository) UpdateSubscription(ctx context.Context, tenantID, id string, in UpdateInput, now time.Time) (*Subscription, error) {
	var eventsJSON *string
	if in.Events != nil {
		b, err := json.Marshal(*in.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal events: %w", err)
		}
		s := string(b)
		eventsJSON = &s
	}

	query := `
		UPDATE webhook_subscriptions SET
			url = COALESCE($3, url),
			events = COALESCE($4::jsonb, events),
			description = COALESCE($5, description),
			is_active = COALESCE($6, is_active),
			updated_at = $7
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + subscriptionColumns

	s, err := scanSubscription(r.db.QueryRowContext(ctx, query,
		tenantID,
		id,
		nullableString(in.URL),
		nullableString(eventsJSON),
		nullableString(in.Description),
		nullableBool(in.IsActive),
		now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return s, nil
}

// UpdateSecret replaces the signing secret of a subscription
func (r *Repository) UpdateSecret(ctx context.Context, tenantID, id, secret string, now time.Time) (*Subscription, error) {
	query := `
		UPDATE webhook_subscriptions SET secret = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2
		RETURNING ` + subscriptionColumns

	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, tenantID, id, secret, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate secret: %w", err)
	}
	return s, nil
}

// DeleteSubscription removes a subscription. Delivery history is kept.
func (r *Repository) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

// InsertAttempt appends a delivery log row
func (r *Repository) InsertAttempt(ctx context.Context, a *DeliveryAttempt) error {
	query := `
		INSERT INTO webhook_delivery_attempts (
			id, subscription_id, tenant_id, job_id, event, payload, url, status_code, response_body,
			error, attempt, duration_ms, delivered_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::json, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	var status sql.NullInt32
	if a.StatusCode != nil {
		status = sql.NullInt32{Int32: int32(*a.StatusCode), Valid: true}
	}
	var deliveredAt sql.NullTime
	if a.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: *a.DeliveredAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.SubscriptionID,
		a.TenantID,
		a.JobID,
		a.Event,
		string(a.Payload),
		a.URL,
		status,
		a.ResponseBody,
		nullableString(a.Error),
		a.Attempt,
		a.DurationMS,
		deliveredAt,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}
	return nil
}

// ListAttempts returns a page of delivery log rows for a subscription, most recent first
func (r *Repository) ListAttempts(ctx context.Context, tenantID, subscriptionID string, page PageRequest) ([]*DeliveryAttempt, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_delivery_attempts WHERE tenant_id = $1 AND subscription_id = $2`,
		tenantID, subscriptionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery attempts: %w", err)
	}

	query := `
		SELECT ` + attemptColumns + `
		FROM webhook_delivery_attempts
		WHERE tenant_id = $1 AND subscription_id = $2
		ORDER BY created_at DESC, attempt DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, tenantID, subscriptionID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*DeliveryAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return attempts, total, nil
}

func collectSubscriptions(rows *sql.Rows) ([]*Subscription, error) {
	subs := []*Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	var eventsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.URL,
		&eventsJSON,
		&s.Secret,
		&s.IsActive,
		&s.Description,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventsJSON, &s.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return &s, nil
}

func scanAttempt(row rowScanner) (*DeliveryAttempt, error) {
	var (
		a           DeliveryAttempt
		payload     []byte
		status      sql.NullInt32
		errMsg      sql.NullString
		deliveredAt sql.NullTime
	)

	err := row.Scan(
		&a.ID,
		&a.SubscriptionID,
		&a.TenantID,
		&a.JobID,
		&a.Event,
		&payload,
		&a.URL,
		&status,
		&a.ResponseBody,
		&errMsg,
		&a.Attempt,
		&a.DurationMS,
		&deliveredAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
	}

	a.Payload = json.RawMessage(payload)
	if status.Valid {
		code := int(status.Int32)
		a.StatusCode = &code
	}
	if errMsg.Valid {
		msg := errMsg.String
		a.Error = &msg
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		a.DeliveredAt = &t
	}
	return &a, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
