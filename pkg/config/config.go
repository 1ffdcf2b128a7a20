package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBUrl              string
	RedisURL           string
	RedisPassword      string
	GoogleClientID     string
	GoogleClientSecret string
	JWTSecret          string
	PaystackSecret     string
	PaystackBaseURL    string
	PaystackChannels   []string
	MinFundingAmount   decimal.Decimal
	MaxActiveKeys      int
	PendingSweepAge    int // minutes before a pending funding is reconciled
	Port               string
	Host               string
	Env                string
	AllowedOrigins     []string
}

func LoadConfig() Config {
	godotenv.Load()

	paystackChannels := strings.Split(getEnv("PAYSTACK_CHANNELS"), ",")

	minAmount, err := decimal.NewFromString(getEnv("MIN_FUNDING_AMOUNT"))
	if err != nil {
		panic("MIN_FUNDING_AMOUNT must be a valid decimal amount")
	}

	maxKeys, err := strconv.Atoi(getEnv("MAX_ACTIVE_KEYS"))
	if err != nil {
		panic("MAX_ACTIVE_KEYS must be a valid integer")
	}

	sweepAge, err := strconv.Atoi(getEnv("PENDING_SWEEP_AGE_MINUTES"))
	if err != nil {
		panic("PENDING_SWEEP_AGE_MINUTES must be a valid integer")
	}

	return Config{
		DBUrl:              getEnv("DATABASE_URL"),
		RedisURL:           getEnv("REDIS_URL"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET"),
		JWTSecret:          getEnv("JWT_SECRET"),
		PaystackSecret:     getEnv("PAYSTACK_SECRET"),
		PaystackBaseURL:    getEnvOr("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackChannels:   paystackChannels,
		MinFundingAmount:   minAmount,
		MaxActiveKeys:      maxKeys,
		PendingSweepAge:    sweepAge,
		Port:               getEnv("PORT"),
		Host:               getEnv("HOST"),
		Env:                getEnv("ENV"),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS"), ","),
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
