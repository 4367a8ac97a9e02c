// Package connect serves the gRPC health check over the Connect protocol so
// plain HTTP clients can check the API port.
package connect

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthCheckProcedure is the fully-qualified health check procedure.
const HealthCheckProcedure = "/grpc.health.v1.Health/Check"

// Checker answers health checks. *health.Server satisfies it.
type Checker interface {
	Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error)
}

// NewHealthHandler returns the mount path and handler for the Connect health
// check.
func NewHealthHandler(checker Checker) (string, http.Handler, error) {
	interceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return "", nil, fmt.Errorf("failed to create otel interceptor: %w", err)
	}

	handler := connect.NewUnaryHandler(
		HealthCheckProcedure,
		func(ctx context.Context, req *connect.Request[healthpb.HealthCheckRequest]) (*connect.Response[healthpb.HealthCheckResponse], error) {
			resp, err := checker.Check(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(resp), nil
		},
		connect.WithInterceptors(interceptor),
	)
	return HealthCheckProcedure, handler, nil
}

func toConnectError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return connect.NewError(connect.CodeInternal, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case codes.Unavailable:
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
