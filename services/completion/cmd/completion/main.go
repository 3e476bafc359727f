package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/bunnyvideo/internal/platform/auth"
	"github.com/example/bunnyvideo/internal/platform/config"
	"github.com/example/bunnyvideo/internal/platform/events"
	"github.com/example/bunnyvideo/internal/platform/httpserver"
	"github.com/example/bunnyvideo/internal/platform/logging"
	"github.com/example/bunnyvideo/internal/platform/natsconn"
	"github.com/example/bunnyvideo/internal/platform/run"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
	"github.com/example/bunnyvideo/services/completion/internal/cache"
	completionconfig "github.com/example/bunnyvideo/services/completion/internal/config"
	"github.com/example/bunnyvideo/services/completion/internal/engine"
	"github.com/example/bunnyvideo/services/completion/internal/handlers"
	"github.com/example/bunnyvideo/services/completion/internal/store"
	"github.com/example/bunnyvideo/services/completion/internal/worker"
)

func main() {
	app, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(app.ServiceName, app.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := completionconfig.Load(app)
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return serve(ctx, log, runner, app, cfg)
	})
	_ = log.Sync()
	run.Exit(code)
}

func serve(ctx context.Context, log *zap.Logger, runner *run.Runner, app config.AppConfig, cfg completionconfig.Config) error {
	st, err := store.Open(ctx, store.OpenOptions{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		AllowMemory: !app.IsProd(),
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	local := cache.NewLocalCache(cfg.CacheSize, cfg.CacheTTL)
	decisions := &cache.Tiered{L1: local}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		decisions.L2 = rc
	}

	instance := uuid.NewString()
	var nc *nats.Conn
	var js nats.JetStreamContext
	if cfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: app.ServiceName, Log: log})
		if err != nil {
			return err
		}
		defer nc.Close()
		if js, err = nc.JetStream(); err != nil {
			return err
		}
		if err := natsconn.EnsureStream(js, events.Stream, []string{events.SubjectWildcard}, 30*24*time.Hour); err != nil {
			return err
		}
		sub, err := cache.Subscribe(nc, instance, local, log)
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	host := engine.NewHostState(st)
	a := authority.New(authority.Options{
		Repo:        st,
		Invalidator: cache.Invalidators{decisions, host, cache.NewBroadcaster(nc, instance)},
		External:    host,
		Events:      events.New(js, log),
		Logger:      log,
	})
	limiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.Ping(pctx)
		},
		AllowedOrigins: app.HTTP.AllowedOrigins,
		Logger:         log,
	})
	handlers.Mount(r, handlers.Deps{
		Authority: a,
		Reader:    &engine.Reader{Authority: a, Cache: decisions, Host: host, Log: log},
		Host:      host,
		Verifier:  auth.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer},
		Limiter:   limiter,
		Log:       log,
	})
	srv := httpserver.New(httpserver.Options{Addr: app.HTTP.Addr, Router: r, Logger: log})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	errCh := make(chan error, 4)
	go func() { errCh <- srv.Start() }()
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		errCh <- (&worker.Reconciler{Log: log, Authority: a, Interval: cfg.ReconcileInterval}).Run(ctx)
	}()
	if js != nil {
		go func() { errCh <- worker.NewSignalConsumer(log, js, a).Run(ctx) }()
	}
	go sweepLimiter(ctx, limiter)
	go watchHealth(ctx, st, healthSrv)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	healthSrv.Shutdown()
	if err := runner.Shutdown(srv.Shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("http shutdown", zap.Error(err))
	}
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(runner.DrainTimeout):
		grpcSrv.Stop()
	}
	return runErr
}

func sweepLimiter(ctx context.Context, rl *handlers.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(10 * time.Minute)
		}
	}
}

func watchHealth(ctx context.Context, st store.Store, hs *health.Server) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		state := healthpb.HealthCheckResponse_SERVING
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := st.Ping(pctx); err != nil {
			state = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()
		hs.SetServingStatus("", state)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
