package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Capstone-2-FMSuggestion-System/backend/cache"
	"github.com/Capstone-2-FMSuggestion-System/backend/checkout"
	"github.com/Capstone-2-FMSuggestion-System/backend/config"
	"github.com/Capstone-2-FMSuggestion-System/backend/controller"
	"github.com/Capstone-2-FMSuggestion-System/backend/kafka"
	"github.com/Capstone-2-FMSuggestion-System/backend/middleware"
	"github.com/Capstone-2-FMSuggestion-System/backend/model"
	"github.com/Capstone-2-FMSuggestion-System/backend/payos"
	"github.com/Capstone-2-FMSuggestion-System/backend/reconcile"
	"github.com/Capstone-2-FMSuggestion-System/backend/routes"
	"github.com/Capstone-2-FMSuggestion-System/backend/store"
)

func initDB(cfg config.Config) *sql.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect db:", err)
	}

	if err := db.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
	); err != nil {
		log.Fatal(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB from gorm:", err)
	}
	return sqlDB
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db := initDB(cfg)
	rdb := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	producer := kafka.NewProducer(cfg.KafkaBroker)
	defer producer.Close()

	gateway := payos.NewClient(payos.Config{
		ClientID:    cfg.PayOSClientID,
		APIKey:      cfg.PayOSAPIKey,
		ChecksumKey: cfg.PayOSChecksumKey,
		BaseURL:     cfg.PayOSBaseURL,
		ReturnURL:   cfg.PayOSReturnURL,
		CancelURL:   cfg.PayOSCancelURL,
	})

	ledger := store.NewSQL(db)

	invalidator := cache.NewInvalidator(rdb, cfg.InvalidationQueue)
	invalidator.Start(ctx)

	engine := reconcile.NewEngine(ledger, invalidator, producer)

	sweeper := reconcile.NewSweeper(ledger, gateway, engine, cfg.SweepInterval, cfg.SweepGrace)
	go sweeper.Run(ctx)

	svc := checkout.NewService(ledger, gateway, invalidator, producer)

	app := fiber.New()
	app.Use(logger.New())

	routes.Register(
		app,
		middleware.AuthRequired(cfg.JWTSecret),
		controller.NewCheckoutController(svc),
		controller.NewOrderController(ledger, svc, rdb, cfg.OrderListTTL),
		controller.NewPaymentController(engine, svc, ledger, gateway),
	)

	log.Println("HTTP server running on", cfg.HTTPAddr)
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatal("fiber error:", err)
	}
}
