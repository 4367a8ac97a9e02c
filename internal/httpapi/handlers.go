// Package httpapi is the tenant-scoped management REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sarathsp06/hookshot/internal/dispatch"
	"github.com/sarathsp06/hookshot/internal/webhooks"
)

// Registry is the subscription registry used by the handlers.
type Registry interface {
	Create(ctx context.Context, tenantID, actorID string, in webhooks.CreateInput) (*webhooks.Subscription, error)
	List(ctx context.Context, tenantID string, page webhooks.PageRequest) (*webhooks.Page[*webhooks.Subscription], error)
	Get(ctx context.Context, tenantID, id string) (*webhooks.Subscription, error)
	Update(ctx context.Context, tenantID, id string, in webhooks.UpdateInput) (*webhooks.Subscription, error)
	Delete(ctx context.Context, tenantID, id string) error
	RotateSecret(ctx context.Context, tenantID, id string) (*webhooks.Subscription, error)
	ListDeliveries(ctx context.Context, tenantID, id string, page webhooks.PageRequest) (*webhooks.Page[*webhooks.DeliveryAttempt], error)
}

// Events triggers domain events on behalf of a tenant.
type Events interface {
	Dispatch(ctx context.Context, event, tenantID string, payload json.RawMessage) (*dispatch.Result, error)
	Trigger(ctx context.Context, event, tenantID string, payload json.RawMessage) (string, error)
}

// HealthFunc reports readiness.
type HealthFunc func(ctx context.Context) bool

// Handler serves the management API.
type Handler struct {
	registry   Registry
	events     Events
	authorizer Authorizer
	healthy    HealthFunc
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthorizer replaces PermissionAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(h *Handler) { h.authorizer = a }
}

// WithHealth sets the readiness check behind GET /healthz.
func WithHealth(f HealthFunc) Option {
	return func(h *Handler) { h.healthy = f }
}

// NewHandler creates the API handler. events may be nil, in which case
// POST /events is not routed.
func NewHandler(registry Registry, events Events, opts ...Option) *Handler {
	h := &Handler{
		registry:   registry,
		events:     events,
		authorizer: PermissionAuthorizer{},
		healthy:    func(context.Context) bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the mux router with middleware applied.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware, recoveryMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, webhooks.NotFound("route"))
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(principalMiddleware)

	api.Handle("/webhooks", h.require(PermWebhooksWrite, h.createWebhook)).Methods(http.MethodPost)
	api.Handle("/webhooks", h.require(PermWebhooksRead, h.listWebhooks)).Methods(http.MethodGet)
	api.Handle("/webhooks/{id}", h.require(PermWebhooksRead, h.getWebhook)).Methods(http.MethodGet)
	api.Handle("/webhooks/{id}", h.require(PermWebhooksWrite, h.updateWebhook)).Methods(http.MethodPatch)
	api.Handle("/webhooks/{id}", h.require(PermWebhooksDelete, h.deleteWebhook)).Methods(http.MethodDelete)
	api.Handle("/webhooks/{id}/deliveries", h.require(PermWebhooksRead, h.listDeliveries)).Methods(http.MethodGet)
	api.Handle("/webhooks/{id}/rotate-secret", h.require(PermWebhooksWrite, h.rotateSecret)).Methods(http.MethodPost)
	if h.events != nil {
		api.Handle("/events", h.require(PermEventsWrite, h.triggerEvent)).Methods(http.MethodPost)
	}

	return r
}

// require checks permission before calling next.
func (h *Handler) require(permission string, next func(http.ResponseWriter, *http.Request, *Principal)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, r, webhooks.BadInput("missing principal"))
			return
		}
		if err := h.authorizer.Authorize(r.Context(), p, permission); err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, p)
	})
}

// health handles GET /healthz
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !h.healthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createWebhook handles POST /webhooks
func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request, p *Principal) {
	var in webhooks.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := h.registry.Create(r.Context(), p.TenantID, p.ActorID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// listWebhooks handles GET /webhooks
func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request, p *Principal) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.registry.List(r.Context(), p.TenantID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getWebhook handles GET /webhooks/{id}
func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request, p *Principal) {
	sub, err := h.registry.Get(r.Context(), p.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// updateWebhook handles PATCH /webhooks/{id}
func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request, p *Principal) {
	var in webhooks.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := h.registry.Update(r.Context(), p.TenantID, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// deleteWebhook handles DELETE /webhooks/{id}
func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request, p *Principal) {
	if err := h.registry.Delete(r.Context(), p.TenantID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// listDeliveries handles GET /webhooks/{id}/deliveries
func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request, p *Principal) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.registry.ListDeliveries(r.Context(), p.TenantID, mux.Vars(r)["id"], page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// rotateSecret handles POST /webhooks/{id}/rotate-secret
func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request, p *Principal) {
	sub, err := h.registry.RotateSecret(r.Context(), p.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type triggerRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// triggerEvent handles POST /events. With ?async=true the event is queued
// and only its id is returned.
func (h *Handler) triggerEvent(w http.ResponseWriter, r *http.Request, p *Principal) {
	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		id, err := h.events.Trigger(r.Context(), req.Event, p.TenantID, req.Payload)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"eventId": id})
		return
	}

	res, err := h.events.Dispatch(r.Context(), req.Event, p.TenantID, req.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
