package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvalidator struct {
	tenants []string
}

func (c *countingInvalidator) InvalidateTenant(_ context.Context, tenantID string) error {
	c.tenants = append(c.tenants, tenantID)
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore, *countingInvalidator) {
	t.Helper()
	store := newMemStore()
	inv := &countingInvalidator{}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc := NewService(store,
		WithInvalidator(inv),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithSecretGenerator(func() (string, error) {
			n++
			return fmt.Sprintf("secret-%d", n), nil
		}),
	)
	return svc, store, inv
}

func TestServiceCreate(t *testing.T) {
	svc, store, inv := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, tenantA, "user-1", CreateInput{
		URL:         " https://example.com/hook ",
		Events:      []string{"order.created", " order.created", "order.paid"},
		Description: "orders",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, tenantA, sub.TenantID)
	assert.Equal(t, "https://example.com/hook", sub.URL)
	assert.Equal(t, []string{"order.created", "order.paid"}, sub.Events)
	assert.Equal(t, "secret-1", sub.Secret)
	assert.True(t, sub.IsActive)
	assert.Equal(t, "user-1", sub.CreatedBy)
	assert.Equal(t, []string{tenantA}, inv.tenants)
	assert.Len(t, store.subs, 1)
}

func TestServiceCreateValidation(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing url", CreateInput{Events: []string{"a"}}, "url"},
		{"relative url", CreateInput{URL: "/hook", Events: []string{"a"}}, "url"},
		{"ftp url", CreateInput{URL: "ftp://example.com", Events: []string{"a"}}, "url"},
		{"no events", CreateInput{URL: "https://example.com"}, "events"},
		{"blank event", CreateInput{URL: "https://example.com", Events: []string{"a", "  "}}, "events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tenantA, "user-1", tt.in)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var gerr *goerrors.Error
			require.True(t, goerrors.As(err, &gerr))
			assert.Equal(t, http.StatusBadRequest, gerr.Code)
			require.NotEmpty(t, gerr.AllValidationErrors())
			assert.Equal(t, tt.field, gerr.AllValidationErrors()[0].Field)
		})
	}
	assert.Empty(t, store.subs)
}

func TestServiceGetRedactsSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, tenantA, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Secret)
	assert.Equal(t, created.URL, got.URL)
}

func TestServiceTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "tenant-b", created.ID)
	assert.True(t, IsNotFound(err))

	_, err = svc.Update(ctx, "tenant-b", created.ID, UpdateInput{Description: strPtr("x")})
	assert.True(t, IsNotFound(err))

	_, err = svc.ListDeliveries(ctx, "tenant-b", created.ID, PageRequest{})
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(svc.Delete(ctx, "tenant-b", created.ID)))

	page, err := svc.List(ctx, "tenant-b", PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestServiceMalformedIDIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, id := range []string{
		"not-a-uuid",
		"urn:uuid:" + subID,
		"{" + subID + "}",
		strings.ReplaceAll(subID, "-", ""),
	} {
		_, err := svc.Get(context.Background(), tenantA, id)
		assert.True(t, IsNotFound(err), id)
		assert.True(t, IsNotFound(svc.Delete(context.Background(), tenantA, id)), id)
	}
}

func TestServiceUpdatePartial(t *testing.T) {
	svc, _, inv := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}, Description: "d"})
	require.NoError(t, err)

	off := false
	updated, err := svc.Update(ctx, tenantA, created.ID, UpdateInput{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "https://example.com", updated.URL)
	assert.Equal(t, []string{"a"}, updated.Events)
	assert.Equal(t, "d", updated.Description)
	assert.Empty(t, updated.Secret)
	assert.Len(t, inv.tenants, 2)

	events := []string{"b", "c"}
	updated, err = svc.Update(ctx, tenantA, created.ID, UpdateInput{Events: &events})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, updated.Events)
	assert.False(t, updated.IsActive)
}

func TestServiceUpdateRejectsEmptyAndInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	_, err = svc.Update(ctx, tenantA, created.ID, UpdateInput{})
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))

	empty := []string{}
	_, err = svc.Update(ctx, tenantA, created.ID, UpdateInput{Events: &empty})
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryValidation))
}

func TestServiceDelete(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, tenantA, created.ID))
	assert.Empty(t, store.subs)

	assert.True(t, IsNotFound(svc.Delete(ctx, tenantA, created.ID)))
}

func TestServiceRotateSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	rotated, err := svc.RotateSecret(ctx, tenantA, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, rotated.ID)
	assert.Equal(t, "secret-2", rotated.Secret)
	assert.NotEqual(t, created.Secret, rotated.Secret)
}

func TestServiceListPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, tenantA, PageRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Len(t, page.Items, 2)
	for _, s := range page.Items {
		assert.Empty(t, s.Secret)
	}
}

func TestServiceDeliveriesSurviveOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, svc.RecordAttempt(ctx, &DeliveryAttempt{
			SubscriptionID: created.ID,
			TenantID:       tenantA,
			Event:          "a",
			Attempt:        i,
		}))
	}

	page, err := svc.ListDeliveries(ctx, tenantA, created.ID, PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.Items[0].Attempt)
	assert.Equal(t, 1, page.Items[2].Attempt)
	assert.NotEmpty(t, page.Items[0].ID)
	assert.False(t, page.Items[0].CreatedAt.IsZero())
}

func TestServiceStoreFailureIsInternal(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.failWith = errors.New("connection reset")

	_, err := svc.Create(context.Background(), tenantA, "user-1", CreateInput{URL: "https://example.com", Events: []string{"a"}})
	require.Error(t, err)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))
}

func strPtr(s string) *string { return &s }
