package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and the environment.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	OpenWeatherAPIKey  string        `validate:"required"`
	OneCallURL         string        `validate:"required,url"`
	GeocodingURL       string        `validate:"required,url"`
	OpenWeatherTimeout time.Duration `validate:"gt=0"`
	Exclude            string

	RequestTimeout time.Duration `validate:"gt=0"`

	ForecastTTL   time.Duration `validate:"gt=0"`
	SweepPeriod   time.Duration `validate:"gt=0,gtefield=ForecastTTL"`
	ForecastLock  string        `validate:"oneof=coarse single_flight"`
	LocationCache string        `validate:"oneof=in_memory memcached"`
	LocationTTL   time.Duration `validate:"gt=0"`

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold uint32
	BreakerHalfOpenRequests uint32
	BreakerOpenTimeout      time.Duration
	BreakerInterval         time.Duration

	ShutdownTimeout time.Duration

	WarmLocations []string `validate:"omitempty,dive,required"`
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	OpenWeather struct {
		OneCallURL   string `yaml:"onecall_url"`
		GeocodingURL string `yaml:"geocoding_url"`
		Timeout      string `yaml:"timeout"`
		Exclude      string `yaml:"exclude"`
	} `yaml:"openweather"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	ForecastCache struct {
		TTL         string `yaml:"ttl"`
		SweepPeriod string `yaml:"sweep_period"`
		Locking     string `yaml:"locking"`
	} `yaml:"forecast_cache"`

	LocationCache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"location_cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		FailureThreshold uint32 `yaml:"failure_threshold"`
		HalfOpenRequests uint32 `yaml:"half_open_requests"`
		OpenTimeout      string `yaml:"open_timeout"`
		Interval         string `yaml:"interval"`
	} `yaml:"circuit_breaker"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Warm struct {
		Locations []string `yaml:"locations"`
		Interval  string   `yaml:"interval"`
	} `yaml:"warm"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
}

const (
	defaultOneCallURL   = "https://api.openweathermap.org/data/3.0/onecall"
	defaultGeocodingURL = "https://api.openweathermap.org/geo/1.0/direct"
)

var validate = validator.New()

// Load reads .env (optional), config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// from the working directory. The API key comes from OPENWEATHER_API_KEY or the secrets file.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	// Variables already in the environment win over .env.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(&fc)

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	if cfg.OpenWeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.OpenWeatherAPIKey = key
	}
	if cfg.OpenWeatherAPIKey == "" {
		return nil, fmt.Errorf("OPENWEATHER_API_KEY required (set env or config/secrets.yaml openweather_api_key)")
	}

	if v := strings.TrimSpace(strings.ToLower(os.Getenv("LOCATION_CACHE_BACKEND"))); v != "" {
		cfg.LocationCache = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}

	if err := check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{
		ServerPort:         orDefault(fc.Server.Port, "8080"),
		OneCallURL:         orDefault(fc.OpenWeather.OneCallURL, defaultOneCallURL),
		GeocodingURL:       orDefault(fc.OpenWeather.GeocodingURL, defaultGeocodingURL),
		OpenWeatherTimeout: parseDurationOrZero(fc.OpenWeather.Timeout, 5*time.Second),
		Exclude:            orDefault(fc.OpenWeather.Exclude, "minutely,hourly,alerts"),

		RequestTimeout: parseDuration(fc.Request.Timeout, 10*time.Second),

		// TTL and sweep period keep non-positive values so validation can reject them.
		ForecastTTL:   parseDurationOrZero(fc.ForecastCache.TTL, 10*time.Minute),
		SweepPeriod:   parseDurationOrZero(fc.ForecastCache.SweepPeriod, 4*time.Hour),
		ForecastLock:  orDefault(strings.ToLower(fc.ForecastCache.Locking), "coarse"),
		LocationCache: orDefault(strings.ToLower(fc.LocationCache.Backend), "in_memory"),
		LocationTTL:   parseDuration(fc.LocationCache.TTL, 24*time.Hour),

		MemcachedAddrs:        orDefault(fc.LocationCache.Memcached.Addrs, "localhost:11211"),
		MemcachedTimeout:      parseDuration(fc.LocationCache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: positiveOr(fc.LocationCache.Memcached.MaxIdleConns, 2),

		RateLimitRPS:   positiveOr(fc.Reliability.RateLimitRPS, 100),
		RateLimitBurst: positiveOr(fc.Reliability.RateLimitBurst, 250),

		BreakerFailureThreshold: fc.CircuitBreaker.FailureThreshold,
		BreakerHalfOpenRequests: fc.CircuitBreaker.HalfOpenRequests,
		BreakerOpenTimeout:      parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second),
		BreakerInterval:         parseDuration(fc.CircuitBreaker.Interval, time.Minute),

		ShutdownTimeout: parseDuration(fc.Shutdown.Timeout, 30*time.Second),

		WarmLocations: fc.Warm.Locations,
		WarmInterval:  parseDurationOrZero(fc.Warm.Interval, 0),
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerHalfOpenRequests == 0 {
		cfg.BreakerHalfOpenRequests = 1
	}
	return cfg
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.OpenWeatherAPIKey), nil
}

// check validates field constraints and raises RequestTimeout above the upstream timeout.
func check(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RequestTimeout <= cfg.OpenWeatherTimeout {
		cfg.RequestTimeout = cfg.OpenWeatherTimeout + time.Second
	}
	return nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero returns defaultVal on empty or unparsable input. Zero and negative
// durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
