package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/codesight/internal/application"
	appai "github.com/bryanwahyu/codesight/internal/application/ai"
	appauth "github.com/bryanwahyu/codesight/internal/application/auth"
	apphistory "github.com/bryanwahyu/codesight/internal/application/history"
	openaiClient "github.com/bryanwahyu/codesight/internal/infra/ai/openai"
	"github.com/bryanwahyu/codesight/internal/infra/httpserver"
	"github.com/bryanwahyu/codesight/internal/infra/notify"
	"github.com/bryanwahyu/codesight/internal/infra/report"
	minioStore "github.com/bryanwahyu/codesight/internal/infra/storage"
	"github.com/bryanwahyu/codesight/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(reg)
	st.broker.OnDrop = func(string) { metrics.SyncDropsTotal.Inc() }

	if st.listener != nil {
		go func() {
			if err := st.listener.Run(ctx); err != nil {
				log.Error("history listener stopped", "error", err)
				st.broker.Fail(err)
			}
		}()
	}

	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: st.db},
	}

	// init services
	clock := application.SystemClock{}
	histSvc := &apphistory.Service{
		Repo:   st.repo,
		Policy: apphistory.SharePolicy(cfg.Sharing.Policy),
		Log:    log,
	}
	renderer := report.NewRenderer()
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx, minioStore.Options{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			Bucket:     cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			PresignTTL: cfg.Minio.PresignTTL,
		})
		if err != nil {
			return fmt.Errorf("minio init error: %w", err)
		}
		histSvc.Artifacts = store
		histSvc.Renderer = renderer
		health["storage"] = middleware.CheckFunc(store.Ping)
	} else {
		log.Warn("minio not configured, report export disabled")
	}

	if cfg.OpenAI.APIKey == "" {
		log.Warn("openai api key not set, analyses will fail")
	}
	aiSvc := appai.NewService(
		openaiClient.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL),
		histSvc, clock, log,
	)
	aiSvc.OnOutcome = func(o appai.Outcome, d time.Duration) { metrics.ObserveAnalysis(string(o), d) }

	authSvc := appauth.NewService(st.auth, notify.LogNotifier{Log: log}, clock, log, appauth.Options{
		SessionTTL:  cfg.Auth.SessionTTL,
		CodeTTL:     cfg.Auth.CodeTTL,
		BaseURL:     cfg.Server.BaseURL,
		AutoConfirm: cfg.Auth.AutoConfirm,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.AnalysesPerMinute, cfg.RateLimit.Burst)
	go sweep(ctx, limiter)

	handler := httpserver.NewRouter(httpserver.Deps{
		Auth:     authSvc,
		AI:       aiSvc,
		History:  histSvc,
		Lister:   st.repo,
		Feed:     st.broker,
		Metrics:  metrics,
		Limiter:  limiter,
		Markdown: renderer,
		Health:   health,
		Ready:    &middleware.DatabaseHealthChecker{DB: st.db},
		Log:      log,
	}, httpserver.Options{
		CookieName:   cfg.Auth.CookieName,
		SecureCookie: cfg.Auth.SecureCookie,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Capacity:     cfg.History.Capacity,
		Version:      version,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// analyses can take a while; websocket streams manage their own deadlines
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return run(ctx, srv, log)
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func sweep(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}
