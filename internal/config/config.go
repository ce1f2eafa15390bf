package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	StorageDriver    string `envconfig:"STORAGE_DRIVER" default:"memory"`
	MySQLDSN         string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/storefront?parseTime=true"`
	MySQLAutoMigrate bool   `envconfig:"MYSQL_AUTO_MIGRATE" default:"true"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:""` // empty keeps idempotency claims in process

	KafkaBrokers   string `envconfig:"KAFKA_BROKERS" default:""` // empty logs events instead
	KafkaTopic     string `envconfig:"KAFKA_TOPIC" default:"storefront.orders"`
	EventWorkers   int    `envconfig:"EVENT_WORKERS" default:"4"`
	EventQueueSize int    `envconfig:"EVENT_QUEUE_SIZE" default:"10000"`

	DeliveryFee           decimal.Decimal `envconfig:"DELIVERY_FEE" default:"50"`
	FreeDeliveryThreshold decimal.Decimal `envconfig:"FREE_DELIVERY_THRESHOLD" default:"0"`
	IdempotencyTTL        time.Duration   `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	PayUKey        string `envconfig:"PAYU_KEY" default:""`
	PayUSalt       string `envconfig:"PAYU_SALT" default:""`
	PayUEnv        string `envconfig:"PAYU_ENV" default:"test"`
	PayUSuccessURL string `envconfig:"PAYU_SUCCESS_URL" default:"http://localhost:8080/api/payments/callback"`
	PayUFailureURL string `envconfig:"PAYU_FAILURE_URL" default:"http://localhost:8080/api/payments/callback"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	if c.EventWorkers < 1 {
		errs = append(errs, errors.New("EVENT_WORKERS must be positive"))
	}
	if c.EventQueueSize < 1 {
		errs = append(errs, errors.New("EVENT_QUEUE_SIZE must be positive"))
	}
	if c.DeliveryFee.IsNegative() {
		errs = append(errs, errors.New("DELIVERY_FEE must not be negative"))
	}
	if c.FreeDeliveryThreshold.IsNegative() {
		errs = append(errs, errors.New("FREE_DELIVERY_THRESHOLD must not be negative"))
	}
	if !c.DeliveryFee.Equal(c.DeliveryFee.Round(2)) {
		errs = append(errs, errors.New("DELIVERY_FEE must have at most two decimal places"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// PaymentsEnabled reports whether merchant credentials are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.PayUKey != "" && c.PayUSalt != ""
}
