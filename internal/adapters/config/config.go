package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"hermes/pkg/errors"
)

type Config struct {
	App           AppConfig
	Bus           BusConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Risk          RiskConfig
	Portfolio     PortfolioConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"hermes"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// BusConfig selects and tunes the event bus backend.
// Backend "memory" is the in-process bus; "stream" binds to Redis Streams
// for durable multi-node fan-out.
type BusConfig struct {
	Backend        string        `envconfig:"BUS_BACKEND" default:"memory"`
	StreamPrefix   string        `envconfig:"BUS_STREAM_PREFIX" default:"hermes"`
	AckWait        time.Duration `envconfig:"BUS_ACK_WAIT" default:"30s"`
	MaxDeliver     int           `envconfig:"BUS_MAX_DELIVER" default:"3"`
	ReclaimEvery   time.Duration `envconfig:"BUS_RECLAIM_INTERVAL" default:"5s"`
	RequestTimeout time.Duration `envconfig:"BUS_REQUEST_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig configures the analytics mirror that forwards bus traffic
// to Kafka for out-of-process consumers. Disabled unless brokers are set.
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_MIRROR_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS"`
}

// RiskConfig carries the portfolio-wide limit defaults. Percentage values
// are expressed as percent of equity unless noted.
type RiskConfig struct {
	MaxDrawdownPct      float64 `envconfig:"RISK_MAX_DRAWDOWN_PCT" default:"15"`
	MaxDailyLossPct     float64 `envconfig:"RISK_MAX_DAILY_LOSS_PCT" default:"5"`
	MaxPositionSizePct  float64 `envconfig:"RISK_MAX_POSITION_SIZE_PCT" default:"10"`
	MaxLeverage         float64 `envconfig:"RISK_MAX_LEVERAGE" default:"20"`
	MaxCorrelation      float64 `envconfig:"RISK_MAX_CORRELATION" default:"0.7"`
	MaxExposurePct      float64 `envconfig:"RISK_MAX_EXPOSURE_PCT" default:"80"`
	MaxOpenPositions    int     `envconfig:"RISK_MAX_OPEN_POSITIONS" default:"20"`
	MaxOrdersPerMinute  int     `envconfig:"RISK_MAX_ORDERS_PER_MINUTE" default:"30"`
	MinBalancePct       float64 `envconfig:"RISK_MIN_BALANCE_PCT" default:"10"`
	MaxExchangeExposure float64 `envconfig:"RISK_MAX_EXCHANGE_EXPOSURE_PCT" default:"40"`
	MaxBotExposure      float64 `envconfig:"RISK_MAX_BOT_EXPOSURE_PCT" default:"25"`
}

type PortfolioConfig struct {
	StartingEquity        float64 `envconfig:"PORTFOLIO_STARTING_EQUITY" default:"100000"`
	RebalanceThresholdPct float64 `envconfig:"PORTFOLIO_REBALANCE_THRESHOLD_PCT" default:"5"`
	TolerancePct          float64 `envconfig:"PORTFOLIO_TOLERANCE_PCT" default:"10"`
	EquityHistoryLimit    int     `envconfig:"PORTFOLIO_EQUITY_HISTORY_LIMIT" default:"10000"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
