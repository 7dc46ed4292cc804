package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/tokenbridge/internal/apiserver/database"
	"github.com/amoylab/tokenbridge/internal/apiserver/handler"
	"github.com/amoylab/tokenbridge/internal/apiserver/middleware"
	"github.com/amoylab/tokenbridge/internal/auth"
	"github.com/amoylab/tokenbridge/internal/auth/social"
	"github.com/amoylab/tokenbridge/internal/auth/storage"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/config"
	"github.com/amoylab/tokenbridge/internal/i18n"
	"github.com/amoylab/tokenbridge/pkg/logger"
	"github.com/amoylab/tokenbridge/pkg/metrics"
	"github.com/amoylab/tokenbridge/pkg/trace"
	"github.com/amoylab/tokenbridge/pkg/version"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func loadConfig() (*config.TokenBridgeConfig, string, error) {
	cfg, path, err := config.LoadConfig[config.TokenBridgeConfig](configPath)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, path, nil
}

func initLogger(cfg *config.TokenBridgeConfig) (*zap.Logger, error) {
	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return lg, nil
}

// initStores opens the user database and the token store on top of it
func initStores(lg *zap.Logger, cfg *config.TokenBridgeConfig) (database.Database, storage.Store, error) {
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store, err := storage.NewStore(lg, &cfg.Storage, db.DB())
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to initialize token storage: %w", err)
	}
	return db, store, nil
}

// newRouter assembles the gin engine with every endpoint and middleware
func newRouter(lg *zap.Logger, cfg *config.TokenBridgeConfig, db database.Database, store storage.Store) (*gin.Engine, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	gateway, err := social.NewGateway(lg, &cfg.Social, cfg.ProprietaryBackendName, db, store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize social backends: %w", err)
	}

	server, err := auth.NewServer(lg, cfg, store, db, gateway, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token server: %w", err)
	}

	translator, err := i18n.New(cfg.I18n.DefaultLang)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translations: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cnst.AppName))
	}
	if m != nil {
		r.Use(m.Middleware())
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	r.Use(i18n.Middleware(translator.DefaultLang()))

	handler.RegisterRoutes(r, cfg.URLNamespace,
		handler.NewHandler(lg, server, translator),
		middleware.NewAuthenticator(lg, store, db, gateway, translator))
	return r, nil
}

func run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("Starting tokenbridge",
		zap.String("version", version.Get()),
		zap.String("config", path))

	if cfg.Tracing.Enabled {
		shutdown, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				lg.Warn("Failed to flush traces", zap.Error(err))
			}
		}()
	}

	db, store, err := initStores(lg, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
		_ = db.Close()
	}()

	gin.SetMode(gin.ReleaseMode)
	r, err := newRouter(lg, cfg, db, store)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		lg.Info("Shutting down server", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Error("Failed to shutdown server", zap.Error(err))
		return err
	}
	return nil
}
