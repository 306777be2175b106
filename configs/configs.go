package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port            string
		Env             string
		LogLevel        string
		ShutdownTimeout time.Duration
	}
	Database struct {
		Driver   string // postgres or memory
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int32
		Migrate  bool
	}
	WebSocket struct {
		PingInterval   time.Duration
		PongWait       time.Duration
		WriteWait      time.Duration
		MaxMessageSize int64
		SendBuffer     int
	}
	Auth struct {
		SecretKey  string
		TokenTTL   time.Duration
		CookieName string
	}
	Scheduler struct {
		Interval time.Duration
	}
	RateLimit struct {
		PerSecond float64
		Burst     int
	}
	Metrics struct {
		Enabled bool
		Path    string
	}
	Features struct {
		AllowCrossOrigin bool
	}
}

var defaults = map[string]any{
	"server.port":               "8080",
	"server.env":                "dev",
	"server.logLevel":           "",
	"server.shutdownTimeout":    "10s",
	"database.driver":           "postgres",
	"database.host":             "localhost",
	"database.port":             "5432",
	"database.user":             "postgres",
	"database.password":         "postgres",
	"database.name":             "auctions",
	"database.sslMode":          "disable",
	"database.maxConns":         10,
	"database.migrate":          true,
	"websocket.pingInterval":    "30s",
	"websocket.pongWait":        "60s",
	"websocket.writeWait":       "10s",
	"websocket.maxMessageSize":  64 * 1024,
	"websocket.sendBuffer":      64,
	"auth.secretKey":            "",
	"auth.tokenTTL":             "24h",
	"auth.cookieName":           "auction.session-token",
	"scheduler.interval":        "5s",
	"rateLimit.perSecond":       20.0,
	"rateLimit.burst":           40,
	"metrics.enabled":           true,
	"metrics.path":              "/metrics",
	"features.allowCrossOrigin": true,
}

func LoadConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load("./configs/.env"); err != nil {
		log.Info("No .env file found")
	}
	return LoadConfigFrom("./configs")
}

// LoadConfigFrom reads config.yaml from dir, overlaid by environment variables.
// A missing config file is not an error: defaults and the environment still apply.
func LoadConfigFrom(dir string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()

	// Allow dots in environment variables to map to nested keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Debug("No config.yaml found, using defaults", "dir", dir)
	}

	substituteEnvVarsInConfig(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Server.LogLevel == "" {
		if config.Server.Env == "dev" {
			config.Server.LogLevel = "debug"
		} else {
			config.Server.LogLevel = "info"
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.sendBuffer must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	db := c.Database
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.SSLMode,
	)
}

// Helper function to manually replace environment variables in config file values
func substituteEnvVarsInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value, ok := v.Get(key).(string)
		if !ok {
			continue
		}

		// Check if the value contains environment variable syntax (e.g., ${PORT})
		if !strings.Contains(value, "${") {
			continue
		}
		expanded := os.Expand(value, os.Getenv)
		if expanded == "" {
			// Unset variable: fall back to the built-in default
			for k, def := range defaults {
				if strings.EqualFold(k, key) {
					v.Set(key, def)
				}
			}
			continue
		}
		v.Set(key, expanded)
	}
}
