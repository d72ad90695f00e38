package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"vyhan.org/internal/auth"
	"vyhan.org/internal/config"
	"vyhan.org/internal/httpapi"
	"vyhan.org/internal/notify"
	"vyhan.org/internal/obs"
	"vyhan.org/internal/shipment"
	"vyhan.org/internal/stream"
	"vyhan.org/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg := config.MustLoad()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Stores: Postgres when a DSN is configured, in-memory otherwise
	// (single-node and local development).
	var (
		db        *sql.DB
		tenants   tenant.Store
		shipments shipment.Store
		messages  notify.MessageStore
	)
	if cfg.Database.DSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
		tenants = tenant.NewPGStore(db)
		shipments = shipment.NewPGStore(db)
		messages = notify.NewPGMessages(db)
	} else {
		tenants = tenant.NewInMemory()
		shipments = shipment.NewInMemory()
		messages = notify.NewInMemoryMessages()
	}

	// Revocation registry: shared via redis when configured, process-local
	// otherwise.
	var registry auth.Registry
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		registry = auth.NewRedisRegistry(redisClient)
	} else {
		registry = auth.NewInMemoryRegistry()
	}

	issuer, err := auth.NewIssuer(cfg.Auth.Secret,
		auth.WithIssuerName(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	authSvc, err := auth.NewService(tenant.NewCredentialStore(tenants), issuer, registry)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	tenantSvc := tenant.NewService(tenants)

	var sms notify.SMSSender
	if cfg.SMS.GatewayURL != "" {
		sms = notify.NewGatewayClient(cfg.SMS.GatewayURL, cfg.SMS.Timeout)
	}
	hub := stream.New()
	shipmentSvc := shipment.NewService(shipments, tenants,
		shipment.WithNotifier(notify.NewBookingNotifier(sms, messages, tenants.Branches(),
			notify.WithTrackingBaseURL(cfg.Tracking.BaseURL))),
		shipment.WithEvents(hub.Publish),
	)

	api := httpapi.New(httpapi.Config{
		Auth:         authSvc,
		Resolver:     tenant.NewResolver(tenants.Organizations()),
		Tenants:      tenantSvc,
		Shipments:    shipmentSvc,
		Inbox:        notify.NewInbox(messages),
		Hub:          hub,
		ReadyProbe:   httpapi.ReadyProbe{DB: db},
		BootstrapKey: cfg.Auth.Secret,
		Version:      version,
	})

	handler := httpapi.RateLimit(api.Handler(), cfg.Server.RateLimitBurst, cfg.Server.RateLimitPerSec)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting vyhan-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Println("Stopped")
}
