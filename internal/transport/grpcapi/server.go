package grpcapi

import (
	"context"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/account"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/orders"
)

// Authenticator проверяет bearer-токен сотрудника.
type Authenticator interface {
	Authenticate(token string) (account.Principal, error)
}

// Options — зависимости gRPC сервера.
type Options struct {
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	// Authenticator nil отключает проверку токена (только для локальной отладки).
	Authenticator Authenticator
	Registerer    prometheus.Registerer
	Logger        *log.Entry
}

// Server — gRPC сервер OrderDesk вместе с health-сервисом.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer собирает gRPC сервер: метрики, проверка сотрудника, OrderDesk и health.
func NewServer(svc *orders.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}

	grpcMetrics := registerServerMetrics(opts.Registerer, logger)
	interceptors := []grpc.UnaryServerInterceptor{grpcMetrics.UnaryServerInterceptor()}
	if opts.Authenticator != nil {
		interceptors = append(interceptors, staffAuthInterceptor(opts.Authenticator))
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	RegisterOrderDeskServer(srv, NewOrderDesk(svc, opts.Idempotency, opts.IdempotencyTTL, logger.WithField("service", "order-desk")))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthServer)

	grpcMetrics.InitializeMetrics(srv)
	return &Server{Server: srv, Health: healthServer}
}

// Shutdown переводит health в NOT_SERVING и дожидается текущих вызовов.
func (s *Server) Shutdown(ctx context.Context) {
	s.Health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}

func registerServerMetrics(reg prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := reg.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// staffAuthInterceptor пускает к OrderDesk только сотрудников; health доступен всем.
func staffAuthInterceptor(auth Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		token := bearerFromMetadata(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata is required")
		}
		principal, err := auth.Authenticate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Error())
		}
		if !principal.IsStaff() {
			return nil, status.Error(codes.PermissionDenied, domain.ErrForbidden.Error())
		}
		return handler(ctx, req)
	}
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(authorizationMetadata)
	if len(values) == 0 {
		return ""
	}
	raw := strings.TrimSpace(values[0])
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
