package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser         string
	DBPass         string
	DBHost         string
	DBPort         string
	DBName         string
	SSLMode        string
	StoreProvider  string
	RedisHost      string
	RedisPort      string
	NatsHost       string
	NatsPort       string
	BusProvider    string
	BusPrefix      string
	ApiPort        string
	GRPCPort       string
	PublicBaseURL  string
	StoreTimeout   time.Duration
	NodeID         int64
	LogLevel       string
	ProviderSecret map[string]string
}

// secretEnv maps each provider to the variable holding its shared secret.
var secretEnv = map[string]string{
	"adgem":    "REWARDGATE_ADGEM_AUTH_TOKEN",
	"cpx":      "REWARDGATE_CPX_SECRET",
	"bitlabs":  "REWARDGATE_BITLABS_SECRET",
	"ayet":     "REWARDGATE_AYET_API_KEY",
	"lootably": "REWARDGATE_LOOTABLY_SECRET",
	"monlix":   "REWARDGATE_MONLIX_SECRET",
}

// New loads and validates configuration from environment variables (and an
// optional .env file). The result is read-only after startup.
// Providers without a secret are left out of ProviderSecret and not routed.
func New() (*Config, error) {
	cfg := load()

	if err := cfg.validateStore(); err != nil {
		return nil, err
	}

	switch cfg.BusProvider {
	case "none":
	case "nats":
		if cfg.NatsHost == "" {
			return nil, fmt.Errorf("missing required env for nats bus: REWARDGATE_NATS_HOST")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats' or 'none'", cfg.BusProvider)
	}

	if cfg.NodeID < 0 || cfg.NodeID > 1023 {
		return nil, fmt.Errorf("REWARDGATE_NODE_ID must be between 0 and 1023, got %d", cfg.NodeID)
	}

	if len(cfg.ProviderSecret) == 0 {
		return nil, fmt.Errorf("no provider secrets configured; set at least one of %s", strings.Join(secretVars(), ", "))
	}

	if _, ok := cfg.ProviderSecret["bitlabs"]; ok && cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("REWARDGATE_PUBLIC_BASE_URL is required when bitlabs is enabled")
	}

	return cfg, nil
}

// NewStore loads configuration for tools that only touch the ledger store,
// such as the migrator. Bus, node and provider secrets are not validated.
func NewStore() (*Config, error) {
	cfg := load()
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:         os.Getenv("REWARDGATE_POSTGRES_USER"),
		DBPass:         os.Getenv("REWARDGATE_POSTGRES_PASSWORD"),
		DBHost:         os.Getenv("REWARDGATE_POSTGRES_HOST"),
		DBPort:         getEnv("REWARDGATE_POSTGRES_PORT", "5432"),
		DBName:         os.Getenv("REWARDGATE_POSTGRES_DB"),
		SSLMode:        getEnv("REWARDGATE_POSTGRES_SSLMODE", "disable"),
		StoreProvider:  getEnv("REWARDGATE_STORE", "postgres"),
		RedisHost:      os.Getenv("REWARDGATE_REDIS_HOST"),
		RedisPort:      getEnv("REWARDGATE_REDIS_PORT", "6379"),
		NatsHost:       os.Getenv("REWARDGATE_NATS_HOST"),
		NatsPort:       getEnv("REWARDGATE_NATS_PORT", "4222"),
		BusProvider:    getEnv("REWARDGATE_BUS_PROVIDER", "none"),
		BusPrefix:      os.Getenv("REWARDGATE_BUS_PREFIX"),
		ApiPort:        getEnv("REWARDGATE_API_PORT", "3000"),
		GRPCPort:       os.Getenv("REWARDGATE_GRPC_PORT"),
		PublicBaseURL:  strings.TrimRight(os.Getenv("REWARDGATE_PUBLIC_BASE_URL"), "/"),
		StoreTimeout:   getEnvDuration("REWARDGATE_STORE_TIMEOUT", 5*time.Second),
		NodeID:         int64(getEnvInt("REWARDGATE_NODE_ID", 1)),
		LogLevel:       getEnv("REWARDGATE_LOG_LEVEL", "info"),
		ProviderSecret: map[string]string{},
	}

	for name, key := range secretEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.ProviderSecret[name] = v
		}
	}

	return cfg
}

func (c *Config) validateStore() error {
	switch c.StoreProvider {
	case "postgres":
		if c.DBUser == "" || c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("missing required env for database: REWARDGATE_POSTGRES_USER/HOST/DB")
		}
	case "redis":
		if c.RedisHost == "" {
			return fmt.Errorf("missing required env for redis store: REWARDGATE_REDIS_HOST")
		}
	default:
		return fmt.Errorf("invalid store %q, must be 'postgres' or 'redis'", c.StoreProvider)
	}
	return nil
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

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

// GRPCAddr returns the gRPC listen address. Returns an error if
// REWARDGATE_GRPC_PORT is unset; callers should skip the gRPC server.
func (c *Config) GRPCAddr() (string, error) {
	if c.GRPCPort == "" {
		return "", fmt.Errorf("gRPC server is disabled (REWARDGATE_GRPC_PORT not set)")
	}
	return ":" + c.GRPCPort, nil
}

func secretVars() []string {
	out := make([]string, 0, len(secretEnv))
	for _, v := range secretEnv {
		out = append(out, v)
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
