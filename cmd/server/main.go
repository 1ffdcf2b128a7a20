package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/cardjoy/giftbox-service/cmd/routes"
	"github.com/cardjoy/giftbox-service/internal/card"
	"github.com/cardjoy/giftbox-service/internal/gift"
	"github.com/cardjoy/giftbox-service/internal/giftbox"
	"github.com/cardjoy/giftbox-service/internal/key"
	"github.com/cardjoy/giftbox-service/internal/paystack"
	"github.com/cardjoy/giftbox-service/internal/settlement"
	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/internal/wallet"
	"github.com/cardjoy/giftbox-service/pkg/config"
	"github.com/cardjoy/giftbox-service/pkg/database"
	"github.com/cardjoy/giftbox-service/pkg/events"
	"github.com/cardjoy/giftbox-service/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	database.Connect(cfg.DBUrl)
	database.Migrate(
		&user.User{},
		&key.APIKey{},
		&card.Card{},
		&card.Website{},
		&wallet.Wallet{},
		&wallet.Transaction{},
		&gift.Gift{},
		&giftbox.GiftBox{},
		&giftbox.GiftBoxItem{},
	)

	redisClient := events.NewRedisClient(cfg)

	walletRepo := wallet.NewRepository(database.DB)
	giftRepo := gift.NewRepository(database.DB)
	boxRepo := giftbox.NewRepository(database.DB)
	cardRepo := card.NewRepository(database.DB)

	gateway := paystack.NewClient(cfg.PaystackSecret, cfg.PaystackBaseURL, cfg.PaystackChannels)
	settlementSvc := settlement.NewService(database.DB, walletRepo, giftRepo, boxRepo, cardRepo, gateway, cfg)

	settlement.NewWebhookWorker(settlementSvc, redisClient).Start()
	settlement.NewSweepWorker(settlementSvc, time.Duration(cfg.PendingSweepAge)*time.Minute).Start()

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, routes.Deps{
		WalletRepo: walletRepo,
		GiftRepo:   giftRepo,
		BoxRepo:    boxRepo,
		Settlement: settlementSvc,
		EventQueue: redisClient,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("Server gracefully shut down")
}
