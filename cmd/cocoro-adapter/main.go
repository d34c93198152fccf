package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/rsokolowski/sharp-cocoro-air/internal/auth"
	"github.com/rsokolowski/sharp-cocoro-air/internal/bridge"
	"github.com/rsokolowski/sharp-cocoro-air/internal/cocoro"
	"github.com/rsokolowski/sharp-cocoro-air/internal/config"
	"github.com/rsokolowski/sharp-cocoro-air/internal/coordinator"
	"github.com/rsokolowski/sharp-cocoro-air/internal/httpapi"
	mqttpkg "github.com/rsokolowski/sharp-cocoro-air/internal/mqtt"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if cfg.Email == "" || cfg.Password == "" {
		slog.Error("COCORO_EMAIL and COCORO_PASSWORD are required")
		os.Exit(1)
	}

	var pubKey *rsa.PublicKey
	if cfg.JWTPublicKeyPath != "" {
		var err error
		pubKey, err = auth.LoadRSAPublicKey(cfg.JWTPublicKeyPath)
		if err != nil {
			slog.Error("load jwt public key failed", "path", cfg.JWTPublicKeyPath, "error", err)
			os.Exit(1)
		}
	}

	client := cocoro.New(cocoro.Config{
		Email:    cfg.Email,
		Password: cfg.Password,
		APIBase:  cfg.APIBase,
		AuthBase: cfg.AuthBase,
	})
	defer client.Close()

	coord := coordinator.New(client, coordinator.Options{
		StartupRetries: cfg.StartupRetries,
		RetryDelay:     cfg.StartupRetryDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Setup(ctx); err != nil {
		if errors.Is(err, coordinator.ErrReauthRequired) {
			slog.Error("cocoro login failed, check credentials", "error", err)
			os.Exit(1)
		}
		// Transient startup failure: keep running, the scheduled poll
		// re-logs-in once the cloud is reachable again.
		slog.Warn("cocoro cloud unreachable at startup", "error", err)
	} else if err := coord.Refresh(ctx); err != nil {
		slog.Warn("initial device refresh failed", "error", err)
	}

	var br *bridge.Bridge
	if cfg.MQTTBrokerURL != "" {
		mc, err := mqttpkg.New(cfg.MQTTBrokerURL)
		if err != nil {
			slog.Error("mqtt init failed", "error", err)
			os.Exit(1)
		}
		defer mc.Disconnect()
		br = bridge.New(mc, coord, cfg.MQTTTopicPrefix)
		if err := br.Start(); err != nil {
			slog.Error("mqtt subscribe failed", "error", err)
			os.Exit(1)
		}
		br.PublishStates()
	}

	sched := cron.New()
	_, err := sched.AddFunc(fmt.Sprintf("@every %s", cfg.PollInterval), func() {
		if err := coord.Refresh(ctx); err != nil {
			slog.Warn("device refresh failed", "error", err)
			return
		}
		if br != nil {
			br.PublishStates()
		}
	})
	if err != nil {
		slog.Error("schedule poll failed", "error", err)
		os.Exit(1)
	}
	sched.Start()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		httpapi.NewServer(coord, pubKey).RegisterRoutes(r)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("cocoro-adapter started", "port", cfg.Port, "poll_interval", cfg.PollInterval)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("cocoro-adapter stopped")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
