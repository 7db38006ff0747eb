// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"grid_hedger/internal/core"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig              `yaml:"app"`
	Venues      map[string]VenueConfig `yaml:"venues"`
	Symbols     []SymbolConfig         `yaml:"symbols"`
	Window      WindowConfig           `yaml:"window"`
	Timing      TimingConfig           `yaml:"timing"`
	Concurrency ConcurrencyConfig      `yaml:"concurrency"`
	Alerts      AlertsConfig           `yaml:"alerts"`
	Store       StoreConfig            `yaml:"store"`
	Feed        FeedConfig             `yaml:"feed"`
	System      SystemConfig           `yaml:"system"`
	Telemetry   TelemetryConfig        `yaml:"telemetry"`
}

// AppConfig selects the venues orders and hedges are routed to
type AppConfig struct {
	PrimaryVenue string `yaml:"primary_venue"`
	HedgeVenue   string `yaml:"hedge_venue"`
}

// VenueConfig contains venue-specific credentials and endpoints
type VenueConfig struct {
	APIKey    Secret `yaml:"api_key"`
	SecretKey Secret `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"` // Optional override for API URL
}

// SymbolConfig describes one traded symbol pair and its quoting grid.
// Decimal quantities are strings so no precision is lost in YAML.
type SymbolConfig struct {
	Name              string     `yaml:"name"`
	PrimarySymbol     string     `yaml:"primary_symbol"`
	HedgeSymbol       string     `yaml:"hedge_symbol"`
	LotRatio          string     `yaml:"lot_ratio"`
	PriceDecimals     int32      `yaml:"price_decimals"`
	MaxOrderSize      string     `yaml:"max_order_size"`
	MaxHedgeOrderSize string     `yaml:"max_hedge_order_size"`
	RiskCoefficient   string     `yaml:"risk_coefficient"`
	Grid              GridConfig `yaml:"grid"`
}

// GridConfig holds the ladder parameters for one symbol
type GridConfig struct {
	StepSpread   string `yaml:"step_spread"`
	StepPosition string `yaml:"step_position"`
	Steps        int    `yaml:"steps"`
	MidSpread    string `yaml:"mid_spread"`
	MidPosition  string `yaml:"mid_position"`
}

// WindowConfig bounds the daily trading session
type WindowConfig struct {
	Open                 string `yaml:"open"`
	Close                string `yaml:"close"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
}

// TimingConfig contains timing-related settings, all in seconds
type TimingConfig struct {
	PollIntervalSeconds        int     `yaml:"poll_interval_seconds"`
	SettlementWaitSeconds      int     `yaml:"settlement_wait_seconds"`
	ConvergenceWaitSeconds     int     `yaml:"convergence_wait_seconds"`
	MarketClosedBackoffSeconds int     `yaml:"market_closed_backoff_seconds"`
	HedgeFloorSeconds          int     `yaml:"hedge_floor_seconds"`
	OrderRate                  float64 `yaml:"order_rate"`
	OrderBurst                 int     `yaml:"order_burst"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	OrderPoolSize   int `yaml:"order_pool_size"`
	OrderPoolBuffer int `yaml:"order_pool_buffer"`
}

// AlertsConfig contains notification channel settings
type AlertsConfig struct {
	QueueSize int            `yaml:"queue_size"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Slack     SlackConfig    `yaml:"slack"`
}

// TelegramConfig contains Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken Secret `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// SlackConfig contains Slack webhook settings
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL Secret `yaml:"webhook_url"`
}

// StoreConfig contains trade persistence settings
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig contains quote feed settings
type FeedConfig struct {
	URL                   string `yaml:"url"`
	ReconnectDelaySeconds int    `yaml:"reconnect_delay_seconds"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSymbols(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateWindow(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateAlerts(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	for _, field := range []struct {
		name, value string
	}{
		{"app.primary_venue", c.App.PrimaryVenue},
		{"app.hedge_venue", c.App.HedgeVenue},
	} {
		if field.value == "" {
			return ValidationError{
				Field:   field.name,
				Message: "venue selection is required",
			}
		}
		if field.value == "mock" {
			continue
		}
		venue, exists := c.Venues[field.value]
		if !exists {
			return ValidationError{
				Field:   field.name,
				Value:   field.value,
				Message: "venue configuration not found in venues section",
			}
		}
		if venue.APIKey == "" || venue.SecretKey == "" {
			return ValidationError{
				Field:   fmt.Sprintf("venues.%s", field.value),
				Message: "api_key and secret_key are required",
			}
		}
	}
	return nil
}

func (c *Config) validateSymbols() error {
	if len(c.Symbols) == 0 {
		return ValidationError{
			Field:   "symbols",
			Message: "at least one symbol must be configured",
		}
	}

	seen := make(map[string]bool)
	for i, sym := range c.Symbols {
		prefix := fmt.Sprintf("symbols[%d]", i)
		if sym.Name == "" {
			return ValidationError{Field: prefix + ".name", Message: "symbol name is required"}
		}
		if seen[sym.Name] {
			return ValidationError{Field: prefix + ".name", Value: sym.Name, Message: "duplicate symbol name"}
		}
		seen[sym.Name] = true
		if sym.PrimarySymbol == "" || sym.HedgeSymbol == "" {
			return ValidationError{
				Field:   prefix,
				Message: "primary_symbol and hedge_symbol are required",
			}
		}

		if _, err := sym.ToSymbolSpec(); err != nil {
			return err
		}
		if _, err := sym.Grid.ToGridSpec(prefix + ".grid"); err != nil {
			return err
		}
		if sym.Grid.Steps < 1 {
			return ValidationError{
				Field:   prefix + ".grid.steps",
				Value:   sym.Grid.Steps,
				Message: "steps must be at least 1",
			}
		}
	}
	return nil
}

func (c *Config) validateWindow() error {
	for _, field := range []struct {
		name, value string
	}{
		{"window.open", c.Window.Open},
		{"window.close", c.Window.Close},
	} {
		if _, err := time.Parse("15:04", field.value); err != nil {
			return ValidationError{
				Field:   field.name,
				Value:   field.value,
				Message: "must be HH:MM",
			}
		}
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.Telegram.Enabled && (c.Alerts.Telegram.BotToken == "" || c.Alerts.Telegram.ChatID == "") {
		return ValidationError{
			Field:   "alerts.telegram",
			Message: "bot_token and chat_id are required when enabled",
		}
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		return ValidationError{
			Field:   "alerts.slack.webhook_url",
			Message: "webhook URL is required when enabled",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func parseDecimalField(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be a decimal number",
		}
	}
	return d, nil
}

// ToSymbolSpec converts the YAML form into the runtime symbol description
func (s SymbolConfig) ToSymbolSpec() (core.SymbolSpec, error) {
	spec := core.SymbolSpec{
		Name:          s.Name,
		PrimarySymbol: s.PrimarySymbol,
		HedgeSymbol:   s.HedgeSymbol,
		PriceDecimals: s.PriceDecimals,
	}

	var err error
	prefix := fmt.Sprintf("symbols.%s", s.Name)
	if spec.LotRatio, err = parseDecimalField(prefix+".lot_ratio", s.LotRatio); err != nil {
		return spec, err
	}
	if !spec.LotRatio.IsPositive() {
		return spec, ValidationError{
			Field:   prefix + ".lot_ratio",
			Value:   s.LotRatio,
			Message: "lot ratio must be positive",
		}
	}
	if spec.MaxOrderSize, err = parseDecimalField(prefix+".max_order_size", s.MaxOrderSize); err != nil {
		return spec, err
	}
	if spec.MaxHedgeOrderSize, err = parseDecimalField(prefix+".max_hedge_order_size", s.MaxHedgeOrderSize); err != nil {
		return spec, err
	}
	if spec.RiskCoefficient, err = parseDecimalField(prefix+".risk_coefficient", s.RiskCoefficient); err != nil {
		return spec, err
	}
	if spec.RiskCoefficient.IsNegative() {
		return spec, ValidationError{
			Field:   prefix + ".risk_coefficient",
			Value:   s.RiskCoefficient,
			Message: "risk coefficient must be non-negative",
		}
	}
	return spec, nil
}

// ToGridSpec converts the YAML form into the runtime grid description
func (g GridConfig) ToGridSpec(prefix string) (core.GridSpec, error) {
	spec := core.GridSpec{Steps: g.Steps}

	var err error
	if spec.StepSpread, err = parseDecimalField(prefix+".step_spread", g.StepSpread); err != nil {
		return spec, err
	}
	if spec.StepPosition, err = parseDecimalField(prefix+".step_position", g.StepPosition); err != nil {
		return spec, err
	}
	if spec.MidSpread, err = parseDecimalField(prefix+".mid_spread", g.MidSpread); err != nil {
		return spec, err
	}
	if spec.MidPosition, err = parseDecimalField(prefix+".mid_position", g.MidPosition); err != nil {
		return spec, err
	}
	return spec, nil
}

// String returns a string representation of the configuration. Credentials
// carry the Secret type and redact themselves on marshal.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			PrimaryVenue: "mock",
			HedgeVenue:   "mock",
		},
		Symbols: []SymbolConfig{
			{
				Name:              "NG",
				PrimarySymbol:     "NG2609",
				HedgeSymbol:       "NG-HEDGE",
				LotRatio:          "117",
				PriceDecimals:     3,
				MaxOrderSize:      "100",
				MaxHedgeOrderSize: "3",
				RiskCoefficient:   "1",
				Grid: GridConfig{
					StepSpread:   "0.002",
					StepPosition: "10",
					Steps:        5,
					MidSpread:    "0.003",
					MidPosition:  "0",
				},
			},
		},
		Window: WindowConfig{
			Open:                 "09:00",
			Close:                "23:45",
			CheckIntervalSeconds: 180,
		},
		Timing: TimingConfig{
			PollIntervalSeconds:        5,
			SettlementWaitSeconds:      5,
			ConvergenceWaitSeconds:     30,
			MarketClosedBackoffSeconds: 300,
			HedgeFloorSeconds:          1,
			OrderRate:                  10,
			OrderBurst:                 20,
		},
		Concurrency: ConcurrencyConfig{
			OrderPoolSize:   8,
			OrderPoolBuffer: 64,
		},
		Alerts: AlertsConfig{
			QueueSize: 100,
		},
		Store: StoreConfig{
			Path: "hedge_trades.db",
		},
		Feed: FeedConfig{
			URL:                   "ws://localhost:9001/quotes",
			ReconnectDelaySeconds: 5,
		},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
