package server

import (
	"context"
	"log"
	"net/http"

	"ledger-service/internal/config"
	hrest "ledger-service/internal/handler/rest"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/internal/service"
	"ledger-service/internal/usecase"
	"ledger-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// NewLedgerServer wires stores, usecases and the REST handler, seeds
// the system and returns the HTTP server ready to listen. Blocks only
// in the returned server's ListenAndServe.
func NewLedgerServer(cfg config.AppConfig) (*http.Server, func()) {
	dbpool, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	// Redis is optional; without it reads just skip the cache.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
	}

	events := pub.NewTransactionEventPublisher(cfg.KafkaBrokers)
	ids := utils.NewIDGenerator()

	// --- Repositories ---
	accountRepo := repository.NewAccountRepo(dbpool)
	txRepo := repository.NewTransactionRepo(dbpool)
	userRepo := repository.NewUserRepo(dbpool)

	// --- Usecases ---
	accountUC := usecase.NewAccountUsecase(accountRepo, userRepo, ids, rdb, logger)
	ledgerUC := usecase.NewLedgerUsecase(accountRepo, txRepo, ids, events, rdb, logger, cfg.TransferLimit)
	statementUC := usecase.NewStatementUsecase(accountRepo, txRepo, userRepo, rdb, logger)

	accrual := service.NewAccrualService(ledgerUC, accountRepo, logrus.New(), cfg.AccrualWorkers)

	// --- Seed the built-in admin (non-blocking) ---
	seeder := service.NewSystemSeeder(accountUC, userRepo)
	go func() {
		if err := seeder.SeedSystem(context.Background()); err != nil {
			log.Printf("system seeding failed: %v", err)
		}
	}()

	handler := hrest.NewLedgerRestHandler(accountUC, ledgerUC, statementUC, accrual, userRepo, cfg.JWTSecret, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Routes(),
	}

	cleanup := func() {
		_ = events.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		dbpool.Close()
		_ = logger.Sync()
	}
	return srv, cleanup
}
