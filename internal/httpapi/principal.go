package httpapi

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Headers set by the upstream gateway after authenticating the caller.
const (
	HeaderTenantID    = "X-Tenant-ID"
	HeaderActorID     = "X-Actor-ID"
	HeaderPermissions = "X-Permissions"
)

// Capabilities checked by the management API.
const (
	PermWebhooksRead   = "webhooks:read"
	PermWebhooksWrite  = "webhooks:write"
	PermWebhooksDelete = "webhooks:delete"
	PermEventsWrite    = "events:write"
)

// Principal is the authenticated caller of a management request.
type Principal struct {
	TenantID    string
	ActorID     string
	Permissions map[string]struct{}
}

// Has reports whether the principal holds perm or the wildcard.
func (p *Principal) Has(perm string) bool {
	if _, ok := p.Permissions["*"]; ok {
		return true
	}
	_, ok := p.Permissions[perm]
	return ok
}

type contextKey string

const (
	principalKey contextKey = "principal"
	requestIDKey contextKey = "request_id"
)

// PrincipalFrom returns the principal stored by the principal middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func parsePermissions(raw string) map[string]struct{} {
	perms := map[string]struct{}{}
	for _, p := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		perms[p] = struct{}{}
	}
	return perms
}

// principalMiddleware rejects requests without a tenant.
func principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenant == "" {
			writeError(w, r, goerrors.New("missing tenant", goerrors.CategoryAuth).
				WithCode(http.StatusUnauthorized).
				WithTextCode("UNAUTHENTICATED"))
			return
		}
		p := &Principal{
			TenantID:    tenant,
			ActorID:     strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Permissions: parsePermissions(r.Header.Get(HeaderPermissions)),
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Authorizer decides whether a principal may use a capability.
type Authorizer interface {
	Authorize(ctx context.Context, p *Principal, permission string) error
}

// PermissionAuthorizer grants exactly the permissions listed on the principal.
type PermissionAuthorizer struct{}

func (PermissionAuthorizer) Authorize(_ context.Context, p *Principal, permission string) error {
	if p.Has(permission) {
		return nil
	}
	return goerrors.New("missing permission "+permission, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode("FORBIDDEN")
}
