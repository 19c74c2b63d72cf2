package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser     string
	DBPass     string
	DBHost     string
	DBPort     string
	DBName     string
	SSLMode    string
	RedisHost  string
	RedisPort  string
	NatsHost   string
	NatsPort   string
	ApiPort    string
	ApiEnabled string

	// Collaborator service endpoints.
	SpendSourceURL string
	PaymentURL     string
	PlatformURL    string

	// Product parameters. These are tunables inferred from the billing rules,
	// so they live in config rather than as constants.
	LowBalanceDays      float64       // trigger a top-up below this many days of spend
	TopUpDays           int           // top-up covers this many days of estimated spend
	MinChargeCents      int64         // charge floor in cents
	GraceWindow         time.Duration // dwell required before each escalation step
	SettlementHour      int           // local hour of the business-day boundary
	SpendFetchAttempts  int           // bounded retries against the spend source per run
	EstimateWindowDays  int           // trailing window for estimated daily spend
	GatewayTimeout      time.Duration // bound on any external call
	SettlementSweepTick time.Duration
	ReconcileInterval   time.Duration
}

// New loads and validates configuration from environment variables.
// The HTTP API is optional: if ADLEDGER_API_ENABLED != "true", ApiAddr() returns
// an error and the HTTP server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:     os.Getenv("ADLEDGER_POSTGRES_USER"),
		DBPass:     os.Getenv("ADLEDGER_POSTGRES_PASSWORD"),
		DBHost:     os.Getenv("ADLEDGER_POSTGRES_HOST"),
		DBPort:     os.Getenv("ADLEDGER_POSTGRES_PORT"),
		DBName:     os.Getenv("ADLEDGER_POSTGRES_DB"),
		SSLMode:    os.Getenv("ADLEDGER_POSTGRES_SSLMODE"),
		RedisHost:  os.Getenv("ADLEDGER_REDIS_HOST"),
		RedisPort:  os.Getenv("ADLEDGER_REDIS_PORT"),
		NatsHost:   os.Getenv("ADLEDGER_NATS_HOST"),
		NatsPort:   os.Getenv("ADLEDGER_NATS_PORT"),
		ApiPort:    os.Getenv("ADLEDGER_API_PORT"),
		ApiEnabled: os.Getenv("ADLEDGER_API_ENABLED"),

		SpendSourceURL: os.Getenv("ADLEDGER_SPEND_SOURCE_URL"),
		PaymentURL:     os.Getenv("ADLEDGER_PAYMENT_URL"),
		PlatformURL:    os.Getenv("ADLEDGER_PLATFORM_URL"),

		LowBalanceDays:      getEnvFloat("ADLEDGER_LOW_BALANCE_DAYS", 2.0),
		TopUpDays:           getEnvInt("ADLEDGER_TOPUP_DAYS", 7),
		MinChargeCents:      int64(getEnvInt("ADLEDGER_MIN_CHARGE_CENTS", 2500)),
		GraceWindow:         getEnvDuration("ADLEDGER_GRACE_WINDOW", 24*time.Hour),
		SettlementHour:      getEnvInt("ADLEDGER_SETTLEMENT_HOUR", 6),
		SpendFetchAttempts:  getEnvInt("ADLEDGER_SPEND_FETCH_ATTEMPTS", 5),
		EstimateWindowDays:  getEnvInt("ADLEDGER_ESTIMATE_WINDOW_DAYS", 7),
		GatewayTimeout:      getEnvDuration("ADLEDGER_GATEWAY_TIMEOUT", 15*time.Second),
		SettlementSweepTick: getEnvDuration("ADLEDGER_SETTLEMENT_SWEEP_TICK", time.Minute),
		ReconcileInterval:   getEnvDuration("ADLEDGER_RECONCILE_INTERVAL", time.Hour),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: ADLEDGER_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: ADLEDGER_REDIS_HOST/PORT")
	}

	// Required: nats (notifications, usage reporting, admin commands)
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: ADLEDGER_NATS_HOST/PORT")
	}

	// Required: collaborator endpoints
	if cfg.SpendSourceURL == "" || cfg.PaymentURL == "" || cfg.PlatformURL == "" {
		return nil, fmt.Errorf("missing required env: ADLEDGER_SPEND_SOURCE_URL/PAYMENT_URL/PLATFORM_URL")
	}

	if cfg.SettlementHour < 0 || cfg.SettlementHour > 23 {
		return nil, fmt.Errorf("ADLEDGER_SETTLEMENT_HOUR must be 0..23, got %d", cfg.SettlementHour)
	}
	if cfg.TopUpDays <= 0 || cfg.EstimateWindowDays <= 0 {
		return nil, fmt.Errorf("ADLEDGER_TOPUP_DAYS and ADLEDGER_ESTIMATE_WINDOW_DAYS must be positive")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled. It returns
// an error when ADLEDGER_API_ENABLED != "true"; callers should then skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("ADLEDGER_API_PORT is required when ADLEDGER_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (ADLEDGER_API_ENABLED != true)")
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var f float64
	if _, err := fmt.Sscanf(val, "%g", &f); err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
