package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Market   Market   `mapstructure:"market"`
	Loans    Loans    `mapstructure:"loans"`
	Tasks    Tasks    `mapstructure:"tasks"`
	Wallet   Wallet   `mapstructure:"wallet"`
	Discord  Discord  `mapstructure:"discord"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Market holds the pricing engine configuration and the item catalog.
type Market struct {
	Items          []Item  `mapstructure:"items"`
	NoiseEnabled   bool    `mapstructure:"noise_enabled"`
	NoiseBound     float64 `mapstructure:"noise_bound"`
	PriceFloor     float64 `mapstructure:"price_floor"`
	DefaultTaxRate float64 `mapstructure:"default_tax_rate"`
}

// Item is one catalog entry. The catalog is static configuration; items are
// never created or deleted at runtime.
type Item struct {
	Identifier   string  `mapstructure:"identifier"`
	InitialPrice float64 `mapstructure:"initial_price"`
	Stock        float64 `mapstructure:"stock"`
	TaxRate      float64 `mapstructure:"tax_rate"`
}

// Loans holds the margin lending configuration.
type Loans struct {
	DailyInterest       float64 `mapstructure:"daily_interest"`
	MinimumInterest     float64 `mapstructure:"minimum_interest"`
	SecurityMargin      float64 `mapstructure:"security_margin"`
	MaxSize             float64 `mapstructure:"max_size"`
	InterestPaymentHour int     `mapstructure:"interest_payment_hour"`
}

// Tasks holds the periods for the scheduled jobs.
type Tasks struct {
	NoisePeriodMinutes   int `mapstructure:"noise_period_minutes"`
	MarginCheckPeriod    int `mapstructure:"margin_check_period"` // seconds
	SavePeriodMinutes    int `mapstructure:"save_period_minutes"`
	HistoryRetentionDays int `mapstructure:"history_retention_days"`
}

// Wallet holds the configuration for the host wallet service API.
type Wallet struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	SecretKey      string  `mapstructure:"secret_key"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Discord holds the configuration for the Discord notification sink.
type Discord struct {
	Enabled   bool   `mapstructure:"enabled"`
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// Server holds the configuration for the ops web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("market.noise_enabled", true)
	viper.SetDefault("market.noise_bound", 0.01) // max 1% per noise pass
	viper.SetDefault("market.price_floor", 0.01)
	viper.SetDefault("market.default_tax_rate", 0.06)
	viper.SetDefault("loans.daily_interest", 0.02)
	viper.SetDefault("loans.minimum_interest", 1.0)
	viper.SetDefault("loans.security_margin", 0.25)
	viper.SetDefault("loans.max_size", 10000)
	viper.SetDefault("loans.interest_payment_hour", 6)
	viper.SetDefault("tasks.noise_period_minutes", 1)
	viper.SetDefault("tasks.margin_check_period", 300)
	viper.SetDefault("tasks.save_period_minutes", 5)
	viper.SetDefault("tasks.history_retention_days", 365)
	viper.SetDefault("wallet.rate_limit", 20)      // requests per second
	viper.SetDefault("wallet.rate_limit_burst", 5) // burst size

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate rejects configurations that would make the engine arithmetic
// meaningless. Called once at startup; nothing revalidates per tick.
func (c *Config) Validate() error {
	if c.Market.PriceFloor <= 0 {
		return fmt.Errorf("market.price_floor must be > 0, got %f", c.Market.PriceFloor)
	}
	if c.Market.NoiseBound < 0 || c.Market.NoiseBound >= 1 {
		return fmt.Errorf("market.noise_bound must be in [0,1), got %f", c.Market.NoiseBound)
	}
	if c.Loans.DailyInterest < 0 {
		return fmt.Errorf("loans.daily_interest must be >= 0, got %f", c.Loans.DailyInterest)
	}
	if c.Loans.SecurityMargin < 0 || c.Loans.SecurityMargin >= 1 {
		return fmt.Errorf("loans.security_margin must be in [0,1), got %f", c.Loans.SecurityMargin)
	}
	if c.Loans.InterestPaymentHour < 0 || c.Loans.InterestPaymentHour > 23 {
		return fmt.Errorf("loans.interest_payment_hour must be in [0,23], got %d", c.Loans.InterestPaymentHour)
	}
	for _, item := range c.Market.Items {
		if item.Identifier == "" {
			return fmt.Errorf("market item with empty identifier")
		}
		if item.InitialPrice <= 0 {
			return fmt.Errorf("item %s: initial_price must be > 0", item.Identifier)
		}
		if item.Stock <= 0 {
			return fmt.Errorf("item %s: stock must be > 0", item.Identifier)
		}
	}
	return nil
}
