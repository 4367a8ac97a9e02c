package webhooks

import (
	"encoding/json"
	"time"
)

// Subscription represents a tenant's registered webhook endpoint
type Subscription struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenantId" db:"tenant_id"`
	URL         string    `json:"url" db:"url"`
	Events      []string  `json:"events" db:"events"`
	Secret      string    `json:"secret,omitempty" db:"secret"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedBy   string    `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Subscribes reports whether the subscription lists the event.
func (s *Subscription) Subscribes(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Redacted returns a copy without the secret. Secrets are only handed out at
// creation and rotation.
func (s *Subscription) Redacted() *Subscription {
	c := *s
	c.Secret = ""
	c.Events = append([]string(nil), s.Events...)
	return &c
}

// DeliveryAttempt is one row of the delivery log. Rows are written once per
// attempt and never updated.
type DeliveryAttempt struct {
	ID             string          `json:"id" db:"id"`
	SubscriptionID string          `json:"subscriptionId" db:"subscription_id"`
	TenantID       string          `json:"-" db:"tenant_id"`
	JobID          int64           `json:"jobId" db:"job_id"`
	Event          string          `json:"event" db:"event"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	URL            string          `json:"url" db:"url"`
	StatusCode     *int            `json:"statusCode" db:"status_code"`
	ResponseBody   string          `json:"responseBody" db:"response_body"`
	Error          *string         `json:"error" db:"error"`
	Attempt        int             `json:"attempts" db:"attempt"`
	DurationMS     int64           `json:"durationMs" db:"duration_ms"`
	DeliveredAt    *time.Time      `json:"deliveredAt" db:"delivered_at"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Succeeded reports whether the attempt got a 2xx response.
func (a *DeliveryAttempt) Succeeded() bool {
	return a.DeliveredAt != nil
}

// CreateInput carries the fields accepted when registering a subscription
type CreateInput struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Description string   `json:"description,omitempty"`
}

// UpdateInput replaces only the non-nil fields
type UpdateInput struct {
	URL         *string   `json:"url,omitempty"`
	Events      *[]string `json:"events,omitempty"`
	Description *string   `json:"description,omitempty"`
	IsActive    *bool     `json:"isActive,omitempty"`
}

// Empty reports whether no field was supplied.
func (u UpdateInput) Empty() bool {
	return u.URL == nil && u.Events == nil && u.Description == nil && u.IsActive == nil
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest is a 1-based page selection
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p PageRequest) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// Page is one page of a listing
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
