package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "ERPLINK"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabasePath      = "erplink.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultTokenTTLMinutes   = 60
	defaultPriceDecimals     = 2
	maxPriceDecimals         = 6
	minimumConnectorTokenLen = 16
)

// AppConfig captures runtime configuration for the connector service.
type AppConfig struct {
	HTTPAddress            string
	DatabaseDriver         string
	DatabasePath           string
	DatabaseDSN            string
	LogLevel               string
	LogFormat              string
	ConnectorToken         string
	SigningSecret          string
	TokenTTL               time.Duration
	IncludeCompletedOrders bool
	ManageStock            bool
	PriceDecimals          int32
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("sync.include_completed_orders", true)
	configViper.SetDefault("sync.manage_stock", true)
	configViper.SetDefault("sync.price_decimals", defaultPriceDecimals)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:           configViper.GetString("database.path"),
		DatabaseDSN:            configViper.GetString("database.dsn"),
		LogLevel:               configViper.GetString("log.level"),
		LogFormat:              configViper.GetString("log.format"),
		ConnectorToken:         configViper.GetString("connector.token"),
		SigningSecret:          configViper.GetString("auth.signing_secret"),
		TokenTTL:               time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		IncludeCompletedOrders: configViper.GetBool("sync.include_completed_orders"),
		ManageStock:            configViper.GetBool("sync.manage_stock"),
		PriceDecimals:          configViper.GetInt32("sync.price_decimals"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings needed to open the database, for commands that never
// serve HTTP.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver:         strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:           configViper.GetString("database.path"),
		DatabaseDSN:            configViper.GetString("database.dsn"),
		LogLevel:               configViper.GetString("log.level"),
		LogFormat:              configViper.GetString("log.format"),
		IncludeCompletedOrders: configViper.GetBool("sync.include_completed_orders"),
		ManageStock:            configViper.GetBool("sync.manage_stock"),
		PriceDecimals:          configViper.GetInt32("sync.price_decimals"),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if len(strings.TrimSpace(c.ConnectorToken)) < minimumConnectorTokenLen {
		return fmt.Errorf("connector.token must have at least %d characters", minimumConnectorTokenLen)
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.PriceDecimals < 0 || c.PriceDecimals > maxPriceDecimals {
		return fmt.Errorf("sync.price_decimals must be between 0 and %d", maxPriceDecimals)
	}
	return nil
}
