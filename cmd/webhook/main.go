package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"debtbot/internal/awsutil"
	"debtbot/internal/bootstrap"
	"debtbot/internal/config"
	"debtbot/internal/httpserver"
	"debtbot/internal/logging"
	"debtbot/internal/observability"
	sqsqueue "debtbot/internal/queue/sqs"
	"debtbot/internal/service"
	"debtbot/internal/util"
)

func main() {
	cfg, err := config.LoadWebhook()
	if err != nil {
		slog.Error("webhook config load failed", "err", err)
		os.Exit(1)
	}
	logging.Init("webhook", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := bootstrap.OpenStore(startupCtx, cfg.StoreConfig)
	startupCancel()
	if err != nil {
		slog.Error("webhook store init failed", "err", err, "backend", cfg.Backend)
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.DefaultRegisterer
	observability.Register(reg)

	var dispatcher service.Dispatcher
	switch cfg.DispatchMode {
	case "sqs":
		sqsClient, err := awsutil.NewSQSClient(ctx, awsutil.Options{Region: cfg.AWSRegion, Endpoint: cfg.LocalstackEndpoint})
		if err != nil {
			slog.Error("webhook sqs client init failed", "err", err)
			os.Exit(1)
		}
		dispatcher = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	default:
		dispatcher = bootstrap.NewEngine(cfg.ProvidersConfig, st)
	}

	inbound := &service.InboundService{
		Log:        st,
		Dispatcher: dispatcher,
		DayKey:     util.DayKeyFunc(cfg.BusinessOffset()),
	}

	s := httpserver.New()
	(&httpserver.Webhook{
		Inbound:       inbound,
		AppSecret:     []byte(cfg.AppSecret),
		VerifyToken:   cfg.VerifyToken,
		PhoneNumberID: cfg.PhoneNumberID,
		Timeout:       cfg.RequestTimeout,
	}).Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, st.Ping))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: httpserver.MetricsHandler(),
	}

	go func() {
		slog.Info("webhook metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("webhook shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("webhook listening", "port", cfg.Port, "dispatch_mode", cfg.DispatchMode, "store", cfg.Backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("webhook server failed", "err", err)
		os.Exit(1)
	}
}
