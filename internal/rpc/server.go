package rpc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/captals/primechain/internal/auth"
	"github.com/captals/primechain/internal/chain"
)

// ServerConfig holds the dependencies of NewServer.
type ServerConfig struct {
	Ledger chain.Ledger
	Tokens *auth.TokenIssuer // nil disables submitter authentication
	Logger *zap.Logger
}

// NewServer builds a gRPC server exposing the Ledger service, the standard
// health service and server reflection. The returned health server is
// already SERVING for ServiceName; callers flip it on shutdown.
func NewServer(cfg ServerConfig, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger),
		AuthInterceptor(cfg.Tokens, auth.ScopeAppend, methodAppend),
	))
	srv := grpc.NewServer(opts...)
	RegisterLedgerServer(srv, NewService(cfg.Ledger, logger))

	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSvc)
	healthSvc.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(srv)
	return srv, healthSvc
}

// LoggingInterceptor returns a unary server interceptor that logs each call.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

// AuthInterceptor requires a bearer token carrying scope on the listed
// methods. Other methods pass through. A nil issuer disables the check.
func AuthInterceptor(tokens *auth.TokenIssuer, scope string, methods ...string) grpc.UnaryServerInterceptor {
	guarded := make(map[string]bool, len(methods))
	for _, m := range methods {
		guarded[m] = true
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if tokens == nil || !guarded[info.FullMethod] {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("authorization"); len(v) > 0 {
				header = v[0]
			}
		}
		raw, err := auth.BearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		claims, err := tokens.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid submitter token")
		}
		if !claims.HasScope(scope) {
			return nil, status.Errorf(codes.PermissionDenied, "token lacks scope %q", scope)
		}
		return handler(ctx, req)
	}
}

// bearer formats an authorization metadata value.
func bearer(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
