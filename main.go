package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"session-trader/internal/api"
	"session-trader/internal/broker"
	"session-trader/internal/engine"
	"session-trader/internal/events"
	"session-trader/internal/journal"
	"session-trader/internal/monitor"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
	"session-trader/pkg/config"
	"session-trader/pkg/db"
)

const version = "1.2.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[Main] session-trader %s starting", version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[Main] open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[Main] migrations: %v", err)
	}
	log.Printf("[Main] database ready at %s", cfg.DBPath)

	seedOperator(database, cfg)

	bus := events.NewBus()

	// Strategy definitions come from YAML and are mirrored into the
	// journal so the API can serve them alongside run history.
	registry := strategy.NewRegistry()
	configs, err := strategy.LoadConfig(cfg.StrategiesPath)
	if err != nil {
		log.Fatalf("[Main] load strategies from %s: %v", cfg.StrategiesPath, err)
	}
	for _, sc := range configs {
		if err := registry.Add(sc); err != nil {
			log.Fatalf("[Main] strategy %s: %v", sc.Name, err)
		}
	}
	if err := strategy.SyncConfigToDB(database.DB, configs); err != nil {
		log.Printf("[Main] strategy sync not persisted: %v", err)
	}
	log.Printf("[Main] %d strategies registered", len(configs))

	gate := risk.NewGate(risk.Limits{
		MaxDailyLossPct:    cfg.MaxDailyLossPct,
		MaxPositionSizePct: cfg.MaxPositionSizePct,
		MaxTradesPerDay:    cfg.MaxTradesPerDay,
		MaxOpenPositions:   cfg.MaxOpenPositions,
		MinBuyingPowerPct:  cfg.MinBuyingPowerPct,
	})
	if config.RiskLimitEnv() {
		log.Printf("[Main] risk limits overridden from environment")
	} else {
		log.Printf("[Main] risk limits at defaults")
	}

	paper := broker.NewPaper(cfg.InitialCash)
	paper.SetMarketOpen(cfg.MarketOpen)

	jrnl := journal.New(database)
	metrics := monitor.NewEngineMetrics()

	eng := engine.New(engine.Config{
		Registry:               registry,
		Broker:                 paper,
		Gate:                   gate,
		Bus:                    bus,
		Recorder:               jrnl,
		Metrics:                metrics,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go jrnl.Follow(ctx, bus)

	if err := eng.Init(ctx); err != nil {
		log.Fatalf("[Main] engine init: %v", err)
	}

	if cfg.AutoStart {
		for _, sc := range configs {
			if !sc.IsActive {
				continue
			}
			if err := eng.StartStrategy(sc.Name); err != nil {
				log.Printf("[Main] strategy %s not started: %v", sc.Name, err)
			}
		}
	}

	server := api.NewServer(api.ServerConfig{
		Bus:            bus,
		DB:             database,
		Engine:         eng,
		Registry:       registry,
		Gate:           gate,
		Broker:         paper,
		Metrics:        metrics,
		JWTSecret:      cfg.JWTSecret,
		Meta:           api.SystemMeta{Paper: true, Version: version},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Printf("[Main] API listening on %s", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("[Main] API server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Main] shutdown signal received")
	eng.Shutdown()
	log.Printf("[Main] bye")
}

// seedOperator creates the operator account on first boot so login
// works without a manual registration step.
func seedOperator(database *db.Database, cfg *config.Config) {
	if cfg.OperatorPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	existing, err := database.GetUserByEmail(ctx, cfg.OperatorEmail)
	if err != nil {
		log.Printf("[Main] operator lookup: %v", err)
		return
	}
	if existing != nil {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.OperatorPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[Main] operator password hash: %v", err)
		return
	}
	now := time.Now()
	if err := database.CreateUser(ctx, db.User{
		ID:           uuid.NewString(),
		Email:        cfg.OperatorEmail,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		log.Printf("[Main] operator seed: %v", err)
		return
	}
	log.Printf("[Main] operator account %s created", cfg.OperatorEmail)
}
