package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// devAPIKey lets a bare `go run ./cmd/api` answer bridge calls locally.
const devAPIKey = "app-key-123"

// Config contains runtime configuration required by the service.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// DBURL enables the Postgres container cache and hit sink. Optional.
	DBURL string `env:"DB_URL"`

	// API_KEYS format: "app1:key1,app2:key2"
	APIKeysRaw string            `env:"API_KEYS"`
	APIKeys    map[string]string // apiKey -> appID

	// AppID stamps hits written to the database.
	AppID string `env:"APP_ID" envDefault:"default"`

	// ContainerDir holds bundled default containers (<id>.yaml).
	ContainerDir string `env:"CONTAINER_DIR" envDefault:"containers"`
	// ContainerURL is the network source, with {id} replaced by the container id.
	ContainerURL    string        `env:"CONTAINER_URL"`
	ContainerMaxAge time.Duration `env:"CONTAINER_MAX_AGE" envDefault:"12h"`

	// CollectorURL selects the HTTP hit sink when DB_URL is empty.
	CollectorURL    string `env:"COLLECTOR_URL"`
	CollectorAPIKey string `env:"COLLECTOR_API_KEY"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	keys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return Config{}, err
	}
	// Local dev fallback so the service runs out-of-the-box.
	if len(keys) == 0 {
		keys[devAPIKey] = cfg.AppID
	}
	cfg.APIKeys = keys

	if cfg.ContainerMaxAge <= 0 {
		return Config{}, errors.New("CONTAINER_MAX_AGE must be positive")
	}
	if cfg.ContainerURL != "" && !strings.Contains(cfg.ContainerURL, "{id}") {
		return Config{}, errors.New("CONTAINER_URL must contain {id}")
	}
	return cfg, nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	keys := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return keys, nil
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, errors.New(`API_KEYS must be "app:key,app:key"`)
		}
		app := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if app == "" || key == "" {
			return nil, errors.New(`API_KEYS must be "app:key,app:key"`)
		}
		keys[key] = app
	}
	return keys, nil
}
