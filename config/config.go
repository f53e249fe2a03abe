package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the API server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mongo     MongoConfig     `yaml:"mongo"`
	JWT       JWTConfig       `yaml:"jwt"`
	Payment   PaymentConfig   `yaml:"payment"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Push      PushConfig      `yaml:"push"`
	Media     MediaConfig     `yaml:"media"`
	Google    GoogleConfig    `yaml:"google"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	GinMode     string   `yaml:"gin_mode"`
	CORSOrigins []string `yaml:"cors_origins"`
	StaticDir   string   `yaml:"static_dir"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// PaymentConfig holds the gateway credentials used to sign and verify payments.
type PaymentConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
	Currency  string `yaml:"currency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subject         string `yaml:"subject"`
}

type MediaConfig struct {
	CloudinaryURL string `yaml:"cloudinary_url"`
	Folder        string `yaml:"folder"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether Google sign-in has credentials.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type JobsConfig struct {
	ReportDelay   time.Duration `yaml:"report_delay"`
	ToggleDelay   time.Duration `yaml:"toggle_delay"`
	FailureRate   float64       `yaml:"failure_rate"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads .env (if any), the optional YAML file named by CONFIG_FILE,
// applies environment overrides and defaults, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	setString(&c.Mongo.URI, "MONGODB_URI")
	setString(&c.Mongo.Database, "MONGODB_DATABASE")
	setString(&c.JWT.Secret, "JWT_SECRET")
	setString(&c.Payment.KeyID, "PAYMENT_KEY_ID")
	setString(&c.Payment.KeySecret, "PAYMENT_KEY_SECRET")
	setString(&c.Server.GinMode, "GIN_MODE")
	setString(&c.Server.StaticDir, "STATIC_DIR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Push.VAPIDPublicKey, "VAPID_PUBLIC_KEY")
	setString(&c.Push.VAPIDPrivateKey, "VAPID_PRIVATE_KEY")
	setString(&c.Push.Subject, "VAPID_SUBJECT")
	setString(&c.Media.CloudinaryURL, "CLOUDINARY_URL")
	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "GOOGLE_REDIRECT_URL")

	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		c.Server.CORSOrigins = nil
		for _, origin := range strings.Split(val, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}
	if val := os.Getenv("PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", val, err)
		}
		c.Server.Port = port
	}
	for env, target := range map[string]*time.Duration{
		"REPORT_DELAY": &c.Jobs.ReportDelay,
		"TOGGLE_DELAY": &c.Jobs.ToggleDelay,
		"JWT_EXPIRY":   &c.JWT.Expiry,
	} {
		if val := os.Getenv(env); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", env, val, err)
			}
			*target = d
		}
	}
	for env, target := range map[string]*float64{
		"JOB_FAILURE_RATE": &c.Jobs.FailureRate,
		"RATE_LIMIT_RPS":   &c.RateLimit.RPS,
	} {
		if val := os.Getenv(env); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", env, val, err)
			}
			*target = f
		}
	}
	if val := os.Getenv("RATE_LIMIT_BURST"); val != "" {
		burst, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", val, err)
		}
		c.RateLimit.Burst = burst
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.GinMode == "" {
		c.Server.GinMode = "release"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "marketplace"
	}
	if c.JWT.Expiry == 0 {
		c.JWT.Expiry = 24 * time.Hour
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "INR"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Push.Subject == "" {
		c.Push.Subject = "mailto:admin@marketplace.local"
	}
	if c.Media.Folder == "" {
		c.Media.Folder = "marketplace/avatars"
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = fmt.Sprintf("http://localhost:%d/api/auth/google/callback", c.Server.Port)
	}
	if c.Jobs.ReportDelay == 0 {
		c.Jobs.ReportDelay = 5 * time.Second
	}
	if c.Jobs.ToggleDelay == 0 {
		c.Jobs.ToggleDelay = 2 * time.Second
	}
	if c.Jobs.SweepSchedule == "" {
		c.Jobs.SweepSchedule = "@every 30s"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// Validate checks that the configuration can run a server.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Jobs.FailureRate < 0 || c.Jobs.FailureRate > 1 {
		return fmt.Errorf("job failure rate must be within [0,1], got %v", c.Jobs.FailureRate)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

func setString(target *string, env string) {
	if val := os.Getenv(env); val != "" {
		*target = val
	}
}
