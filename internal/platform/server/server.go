package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	serviceName     = "nearest-leader"
	shutdownTimeout = 10 * time.Second
)

// Routes は HTTP ルートを登録します。
type Routes interface {
	Register(e *echo.Echo)
}

// Worker はサーバーと同じライフサイクルで動くバックグラウンド処理です。
// ctx がキャンセルされたら nil を返して終了します。
type Worker func(ctx context.Context) error

// Server は HTTP API と gRPC ヘルスチェックのライフサイクルを管理します。
type Server struct {
	httpAddr   string
	grpcAddr   string
	echo       *echo.Echo
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
}

// New はサーバーを構築します。
func New(cfg config.ServerConfig, routes Routes, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(serviceName))
	e.Use(requestLogger(logger))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(cfg.RequestTimeout))
	}
	routes.Register(e)

	grpcServer := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		httpAddr:   cfg.HTTPListenAddr,
		grpcAddr:   cfg.GRPCListenAddr,
		echo:       e,
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("route", v.RoutePath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

// Run は HTTP サーバー、gRPC サーバー、workers を起動します。
// ctx がキャンセルされると全体を停止し、いずれかが失敗した場合はその error を返します。
func (s *Server) Run(ctx context.Context, workers ...Worker) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.grpcAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.echo.Start(s.httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})

	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.echo.Shutdown(shutdownCtx)
		s.grpcServer.GracefulStop()
		if err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("server started", zap.String("http_addr", s.httpAddr), zap.String("grpc_addr", s.grpcAddr))

	return g.Wait()
}
