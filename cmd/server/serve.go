package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-print-rfq/internal/client"
	"github.com/pesio-ai/be-print-rfq/internal/handler"
	"github.com/pesio-ai/be-print-rfq/internal/notify"
	"github.com/pesio-ai/be-print-rfq/internal/platform/config"
	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
	"github.com/pesio-ai/be-print-rfq/internal/platform/middleware"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC APIs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(parent context.Context, cfg *config.Config) error {
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Print RFQ Service")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	repos := newRepositories(db)

	var options []service.Option

	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Drain()
		options = append(options, service.WithPublisher(
			client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Component("events").Logger)))
		log.Info().Str("url", cfg.NATS.URL).Msg("Event publishing enabled")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := client.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		options = append(options, service.WithDispatchLocker(
			client.NewDispatchLock(rdb, cfg.Redis.KeyNamespace, cfg.Redis.DispatchTTL)))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Dispatch lock enabled")
	}

	gateway, err := buildGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	if gateway != nil {
		options = append(options, service.WithGateway(gateway))
	} else {
		log.Warn().Msg("SendGrid not configured, dispatch runs in dry-run mode")
	}

	rfqService := service.NewRFQService(
		repos.jobs, repos.vendors, repos.quotes, repos.events,
		serviceOptions(cfg), log.Component("rfq"), options...,
	)

	// HTTP
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recovery(&log.Logger),
		middleware.Logger(&log.Logger),
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)
	handler.NewHTTPHandler(rfqService, log).Register(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryServerInterceptor(log.Component("grpc"))))
	handler.RegisterQuoteRequestServiceServer(grpcServer, handler.NewGRPCHandler(rfqService, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.QuoteRequestServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server failed")
	}

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return runErr
}

// buildGateway wires SendGrid delivery and, when a Gemini key is set, drafted
// message bodies with the template as fallback. It returns nil when SendGrid
// is not configured.
func buildGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (*notify.Gateway, error) {
	if cfg.SendGrid.APIKey == "" {
		return nil, nil
	}

	sender, err := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:     cfg.SendGrid.APIKey,
		BaseURL:    cfg.SendGrid.BaseURL,
		FromEmail:  cfg.SendGrid.FromEmail,
		FromName:   cfg.SendGrid.FromName,
		ReplyTo:    cfg.RFQ.ReplyToEmail,
		Timeout:    cfg.SendGrid.Timeout,
		MaxRetries: cfg.SendGrid.MaxRetries,
	}, log.Component("sendgrid"))
	if err != nil {
		return nil, fmt.Errorf("configure sendgrid: %w", err)
	}

	var renderer notify.Renderer = notify.NewTemplateRenderer()
	if cfg.Gemini.APIKey != "" {
		gemini, err := notify.NewGeminiRenderer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, renderer, log.Component("gemini"))
		if err != nil {
			return nil, fmt.Errorf("configure gemini: %w", err)
		}
		log.Info().Str("model", gemini.Model()).Msg("Gemini message drafting enabled")
		renderer = gemini
	}

	return notify.NewGateway(renderer, sender), nil
}
