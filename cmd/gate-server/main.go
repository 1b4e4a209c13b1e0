// Command gate-server serves GET /api/data behind an x402 payment gate that
// verifies native transfers on chain.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitwit/x402pay/clients"
	"github.com/vitwit/x402pay/config"
	"github.com/vitwit/x402pay/gate"
	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
	"github.com/vitwit/x402pay/settlement"
	"github.com/vitwit/x402pay/verification"
	"golang.org/x/time/rate"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (default ./.env if present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		log.Fatalf("init metrics: %v", err)
	}

	network := cfg.NetworkDescriptor()
	evm, err := clients.NewEVMClient(ctx, network)
	if err != nil {
		log.Fatalf("connect %s: %v", network.Network, err)
	}
	verifier := verification.NewVerificationService(cfg.RequestTimeout)
	if err := verifier.AddEVMClient(evm); err != nil {
		log.Fatalf("register %s: %v", network.Network, err)
	}
	defer verifier.Close()

	var settler settlement.Settler = settlement.NewMemoryLedger(settlement.DefaultRetention)
	if cfg.RedisURL != "" {
		rdb, err := settlement.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer rdb.Close()
		settler = settlement.NewRedisLedger(rdb, settlement.DefaultRetention)
	}

	g, err := gate.New(gate.Config{
		PayTo: cfg.Recipient,
		Routes: map[string]gate.Route{
			"GET " + cfg.ResourcePath: {
				Price:       "$" + cfg.PriceUSD().String(),
				Network:     network.Network,
				Description: "Premium data",
			},
		},
		Converter:       cfg.Converter(),
		ResourceBaseURL: cfg.ResourceBaseURL,
		Verifier:        verifier,
		Settler:         settler,
		Logger:          zl,
		Metrics:         recorder,
	})
	if err != nil {
		log.Fatalf("init gate: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gate.RequestLogger(zl))
	r.Use(gate.CORS(cfg.Origins()))
	r.Use(gate.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute).Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "network": network.Network})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	paid := r.Group("/", g.GinMiddleware())
	paid.GET(cfg.ResourcePath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "This is paid content!",
			"data":    "Your premium data here",
		})
	})

	srv := &http.Server{
		Addr:              cfg.GateAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Error("server shutdown failed", map[string]any{"error": err})
		}
	}()

	zl.Info("gate server running", map[string]any{
		"addr":    cfg.GateAddr,
		"network": network.Network.String(),
		"payTo":   cfg.Recipient,
		"price":   cfg.PriceUSD().String(),
		"ledger":  ledgerName(cfg.RedisURL),
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func ledgerName(redisURL string) string {
	if redisURL != "" {
		return "redis"
	}
	return "memory"
}
