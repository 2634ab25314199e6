package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppPort          string
	WSAddr           string
	GitopiaAPIURL    string
	GitopiaWebURL    string
	TelegramBotToken string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	LookupTimeout    time.Duration
	SendRate         float64
	SendBurst        int
	LogLevel         string
	LogFormat        string
}

var defaults = map[string]any{
	"APP_PORT":          "8080",
	"GITOPIA_WEB_URL":   "https://gitopia.com",
	"RECONNECT_DELAY":   time.Second,
	"HANDSHAKE_TIMEOUT": 45 * time.Second,
	"LOOKUP_TIMEOUT":    10 * time.Second,
	"SEND_RATE":         25.0,
	"SEND_BURST":        5,
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "console",
}

var keys = []string{
	"APP_PORT", "WS_ADDR", "GITOPIA_API_URL", "GITOPIA_WEB_URL", "TELEGRAM_BOT_TOKEN",
	"RECONNECT_DELAY", "HANDSHAKE_TIMEOUT", "LOOKUP_TIMEOUT", "SEND_RATE", "SEND_BURST",
	"LOG_LEVEL", "LOG_FORMAT",
}

// Load reads configuration from, in order of precedence, the environment,
// .env.local / .env files, the optional config file and defaults.
func Load(configFile string) (Config, error) {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	return Config{
		AppPort:          v.GetString("APP_PORT"),
		WSAddr:           v.GetString("WS_ADDR"),
		GitopiaAPIURL:    strings.TrimRight(v.GetString("GITOPIA_API_URL"), "/"),
		GitopiaWebURL:    strings.TrimRight(v.GetString("GITOPIA_WEB_URL"), "/"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		ReconnectDelay:   v.GetDuration("RECONNECT_DELAY"),
		HandshakeTimeout: v.GetDuration("HANDSHAKE_TIMEOUT"),
		LookupTimeout:    v.GetDuration("LOOKUP_TIMEOUT"),
		SendRate:         v.GetFloat64("SEND_RATE"),
		SendBurst:        v.GetInt("SEND_BURST"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
	}
}

// Validate reports every missing or nonsensical setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.WSAddr == "" {
		errs = append(errs, errors.New("WS_ADDR is required"))
	}
	if c.GitopiaAPIURL == "" {
		errs = append(errs, errors.New("GITOPIA_API_URL is required"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("RECONNECT_DELAY must be positive"))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, errors.New("LOOKUP_TIMEOUT must be positive"))
	}
	if c.SendRate <= 0 || c.SendBurst <= 0 {
		errs = append(errs, errors.New("SEND_RATE and SEND_BURST must be positive"))
	}
	return errors.Join(errs...)
}
