package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"wafgateway/internal/access"
	"wafgateway/internal/captcha"
	"wafgateway/internal/config"
	"wafgateway/internal/configcache"
	"wafgateway/internal/controlplane"
	"wafgateway/internal/kv"
	"wafgateway/internal/logging"
	"wafgateway/internal/middleware"
	wafproxy "wafgateway/internal/proxy"
	"wafgateway/internal/ratelimiter"
	"wafgateway/internal/ruleengine"
	"wafgateway/internal/server"
	"wafgateway/internal/sink"
	"wafgateway/internal/telemetry"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	sugar := logging.New(cfg.LogLevel)
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := kv.NewRedisStore(ctx, cfg.KVStoreURL)
	if err != nil {
		sugar.Fatalw("kv store connect failed", "error", err)
	}
	defer store.Close()

	cpClient := controlplane.New(cfg.ControlPlaneURL, cfg.WAFTimeout)

	cache := configcache.New(store, cpClient, cfg.WAFCacheTTL, sugar)
	limiter := ratelimiter.New(store)
	gate := captcha.New(store, cfg.RecaptchaSecretKey, sugar)
	gate.AllowDebugToken = cfg.AllowDebugCaptchaToken
	engine := ruleengine.New(limiter, gate, sugar)
	controls := access.New(cpClient, sugar)
	hub := telemetry.New(sugar)
	evtSink := sink.New(cpClient, sugar)

	wafMiddleware := wafproxy.New(cache, controls, engine, hub, evtSink, sugar, cfg.WAFTimeout)
	handlers := server.New(hub, gate, sugar)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/stats", handlers.Stats)
	mux.HandleFunc("/verify-recaptcha", handlers.VerifyRecaptcha)
	mux.Handle("/ws", telemetry.ServeWS(hub, sugar))
	mux.HandleFunc("GET /{$}", handlers.Root)
	mux.Handle("/", wafMiddleware)

	handler := middleware.RequestLogger(middleware.CORS(&cfg)(mux))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.WAFTimeout,
		WriteTimeout: cfg.WAFTimeout,
	}

	go func() {
		sugar.Infow("starting wafgateway", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("graceful shutdown failed", "error", err)
	}
}
