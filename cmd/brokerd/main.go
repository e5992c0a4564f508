package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ultima-ai/ultima-broker/internal/auth"
	"github.com/ultima-ai/ultima-broker/internal/bootstrap"
	"github.com/ultima-ai/ultima-broker/internal/broker"
	"github.com/ultima-ai/ultima-broker/internal/config"
	"github.com/ultima-ai/ultima-broker/internal/httpserver"
	"github.com/ultima-ai/ultima-broker/internal/logging"
	"github.com/ultima-ai/ultima-broker/internal/payments"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
	"github.com/ultima-ai/ultima-broker/internal/version"
)

func main() {
	cfg, err := config.LoadBrokerConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Rotating file logging, enabled when log_file is set
	const maxLogBytes = int64(300 * 1024 * 1024) // 300MB
	logTarget := strings.TrimSpace(cfg.LogFile)
	if logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, maxLogBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[brokerd] ")
		defer rot.Close()
	}

	log.Printf("brokerd %s starting env=%s provider=%s model=%s", version.Info(), cfg.Environment, cfg.Provider, cfg.Model)

	ledgerStore, err := bootstrap.OpenLedger(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledgerStore.Close()

	txStore, err := bootstrap.OpenTxLog(cfg)
	if err != nil {
		log.Fatalf("open transaction log: %v", err)
	}
	defer txStore.Close()

	table := pricing.Default()
	if strings.TrimSpace(cfg.PricingFile) != "" {
		table, err = pricing.Load(cfg.PricingFile)
		if err != nil {
			log.Fatalf("load pricing file: %v", err)
		}
		log.Printf("pricing loaded from %s", cfg.PricingFile)
	}

	gen, err := bootstrap.OpenGenerator(cfg)
	if err != nil {
		log.Fatalf("init generation provider %q: %v", cfg.Provider, err)
	}

	b := broker.New(ledgerStore, txStore, table, gen, broker.Config{
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxTokens:       cfg.MaxTokens,
		RefundOnFailure: cfg.RefundOnFailure,
	})
	b.SetLogger(log.New(log.Writer(), "[brokerd/broker] ", log.LstdFlags|log.Lmicroseconds))

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		processor, err := payments.New(cfg.StripeAPIKey)
		if err != nil {
			log.Fatalf("init stripe: %v", err)
		}
		b.SetPayments(processor)
		log.Printf("stripe payments enabled")
	} else {
		log.Printf("no stripe key configured; purchases credit tokens without charging")
	}

	var authManager *auth.Manager
	if !cfg.AuthDisabled {
		authManager = auth.NewManager(cfg.AuthSecret)
	} else {
		log.Printf("authorization disabled: skipping session validation")
	}

	httpSrv := httpserver.New(b, authManager, cfg.AuthDisabled)
	httpSrv.SetLogger(log.New(log.Writer(), "[brokerd/http] ", log.LstdFlags|log.Lmicroseconds))
	httpSrv.SetLogLevel(cfg.LogLevel)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpSrv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("broker server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
