package routes

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/cardjoy/giftbox-service/internal/auth"
	"github.com/cardjoy/giftbox-service/internal/gift"
	"github.com/cardjoy/giftbox-service/internal/giftbox"
	"github.com/cardjoy/giftbox-service/internal/key"
	"github.com/cardjoy/giftbox-service/internal/middleware"
	"github.com/cardjoy/giftbox-service/internal/settlement"
	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/internal/wallet"
	"github.com/cardjoy/giftbox-service/pkg/config"
	"github.com/cardjoy/giftbox-service/pkg/database"
	"github.com/cardjoy/giftbox-service/pkg/logger"
)

type Deps struct {
	WalletRepo wallet.Repository
	GiftRepo   gift.Repository
	BoxRepo    giftbox.Repository
	Settlement *settlement.Service
	EventQueue settlement.EventQueue
}

func RegisterRoutes(r *mux.Router, cfg config.Config, deps Deps) http.Handler {
	userRepo := user.NewRepository(database.DB)
	keyRepo := key.NewRepository(database.DB)

	authHandler := auth.NewHandler(cfg, userRepo)
	keyHandler := key.NewHandler(cfg, keyRepo)
	walletHandler := wallet.NewHandler(deps.WalletRepo)
	giftHandler := gift.NewHandler(deps.GiftRepo, deps.BoxRepo)
	boxHandler := giftbox.NewHandler(deps.BoxRepo)
	settlementHandler := settlement.NewHandler(deps.Settlement, deps.EventQueue)

	r.Use(middleware.LoggingMiddleware)

	authR := r.PathPrefix("/api/auth").Subrouter()
	authR.HandleFunc("/google", authHandler.GoogleLogin).Methods("GET")
	authR.HandleFunc("/google/callback", authHandler.GoogleCallback).Methods("GET")

	keysR := r.PathPrefix("/api/keys").Subrouter()
	keysR.Use(auth.JWTMiddleware(cfg, userRepo))
	keysR.HandleFunc("/create", keyHandler.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/rollover", keyHandler.RolloverAPIKey).Methods("POST")
	keysR.HandleFunc("/revoke", keyHandler.RevokeAPIKey).Methods("POST")
	keysR.HandleFunc("", keyHandler.ListAPIKeys).Methods("GET")

	walletR := r.PathPrefix("/api/wallet").Subrouter()

	walletR.HandleFunc("/paystack/webhook", settlementHandler.PaystackWebhook).Methods("POST")

	createR := walletR.PathPrefix("/create").Subrouter()
	createR.Use(auth.JWTMiddleware(cfg, userRepo))
	createR.HandleFunc("", walletHandler.CreateWallet).Methods("POST")

	opsR := walletR.PathPrefix("").Subrouter()
	opsR.Use(auth.UnifiedAuthMiddleware(cfg, userRepo, keyRepo))
	opsR.HandleFunc("", walletHandler.GetWallet).Methods("GET")
	opsR.Handle("/balance", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(walletHandler.GetWalletBalance))).Methods("GET")
	opsR.Handle("/transactions", auth.RequirePermission(string(key.PermissionRead))(http.HandlerFunc(walletHandler.GetTransactions))).Methods("GET")
	opsR.Handle("/fund", auth.RequirePermission(string(key.PermissionFund))(http.HandlerFunc(settlementHandler.FundWallet))).Methods("POST")
	opsR.Handle("/fund/{reference}/verify", auth.RequirePermission(string(key.PermissionFund))(http.HandlerFunc(settlementHandler.VerifyFunding))).Methods("GET")

	giftsR := r.PathPrefix("/api/gifts").Subrouter()
	giftsR.Use(auth.UnifiedAuthMiddleware(cfg, userRepo, keyRepo))
	giftsR.HandleFunc("", giftHandler.ListGifts).Methods("GET")
	giftsR.HandleFunc("", giftHandler.CreateGift).Methods("POST")
	giftsR.HandleFunc("/{id}", giftHandler.GetGift).Methods("GET")
	giftsR.HandleFunc("/{id}", giftHandler.UpdateGift).Methods("PUT")
	giftsR.HandleFunc("/{id}", giftHandler.DeleteGift).Methods("DELETE")
	giftsR.Handle("/{id}/purchase", auth.RequirePermission(string(key.PermissionPurchase))(http.HandlerFunc(settlementHandler.PurchaseGift))).Methods("POST")

	boxesR := r.PathPrefix("/api/giftboxes").Subrouter()
	boxesR.Use(auth.UnifiedAuthMiddleware(cfg, userRepo, keyRepo))
	boxesR.Handle("/items", auth.RequirePermission(string(key.PermissionGifting))(http.HandlerFunc(settlementHandler.AddToGiftBox))).Methods("POST")
	boxesR.Handle("/redeem", auth.RequirePermission(string(key.PermissionRedeem))(http.HandlerFunc(settlementHandler.RedeemGiftBox))).Methods("POST")
	boxesR.HandleFunc("", boxHandler.ListSentGiftBoxes).Methods("GET")
	boxesR.HandleFunc("/{id}", boxHandler.GetGiftBox).Methods("GET")

	if cfg.Env != "production" {
		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modifiedContent := strings.Replace(string(content), "{{BASE_URL}}", "/", -1)

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-api-key"}),
	)

	return corsObj(r)
}
