package configs

import (
	"os"
	"time"

	"github.com/corebank/ledger-core/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for the ledger service.
type Config struct {
	MetricsAddr          string        `mapstructure:"METRICS_ADDR" validate:"required"`
	PrimaryDbAddr        string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReadDbAddr           string        `mapstructure:"READ_DB_ADDR"`
	MaxDbCons            int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons            int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	RedisAddr            string        `mapstructure:"REDIS_ADDR" validate:"required"`
	PinFreshnessWindow   time.Duration `mapstructure:"PIN_FRESHNESS_WINDOW" validate:"required"`
	PinAttemptRate       int           `mapstructure:"PIN_ATTEMPT_RATE" validate:"min=1"`
	PinAttemptBurst      int           `mapstructure:"PIN_ATTEMPT_BURST" validate:"min=1"`
	MaxTransactionAmount string        `mapstructure:"MAX_TRANSACTION_AMOUNT" validate:"required"`
	IdMaxAttempts        int           `mapstructure:"ID_MAX_ATTEMPTS" validate:"min=1"`
	UnitRetryCount       uint64        `mapstructure:"UNIT_RETRY_COUNT" validate:"min=1"`
	CardValidityYears    int           `mapstructure:"CARD_VALIDITY_YEARS" validate:"min=1"`

	// MaxAmount is MaxTransactionAmount parsed at load time.
	MaxAmount decimal.Decimal `mapstructure:"-"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("METRICS_ADDR", ":9102")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("PIN_FRESHNESS_WINDOW", "10m")
	viper.SetDefault("PIN_ATTEMPT_RATE", "5")
	viper.SetDefault("PIN_ATTEMPT_BURST", "5")
	viper.SetDefault("MAX_TRANSACTION_AMOUNT", "1000000.00")
	viper.SetDefault("ID_MAX_ATTEMPTS", "5")
	viper.SetDefault("UNIT_RETRY_COUNT", "3")
	viper.SetDefault("CARD_VALIDITY_YEARS", "3")

	// Optional: Read from config.yaml if exists
	if os.Getenv("APP_ENV") == "production" {
		viper.SetConfigName("config.prod")
	} else if os.Getenv("APP_ENV") == "test" {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/ledger/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}

	maxAmount, err := decimal.NewFromString(cfg.MaxTransactionAmount)
	if err != nil {
		logger.Error("invalid MAX_TRANSACTION_AMOUNT", zap.String("value", cfg.MaxTransactionAmount), zap.Error(err))
		return nil, err
	}
	cfg.MaxAmount = maxAmount
	return &cfg, nil
}
