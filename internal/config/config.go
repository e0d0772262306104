// internal/config/config.go
//
// Configuration loader. Three layers, highest precedence last:
//
//  1. Optional .env file (godotenv).
//  2. Optional YAML file (MAILKITE_CONFIG or ./config.yaml).
//  3. Environment variables prefixed MAILKITE_, where __ maps to "."
//     (e.g. MAILKITE_WORKER__BATCH_SIZE -> worker.batch_size).
//
// The merged tree is unmarshalled into Config and validated.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP struct {
		ListenAddr string `koanf:"listen_addr" validate:"required"`
	} `koanf:"http"`

	Database struct {
		URL     string `koanf:"url" validate:"required"`
		MaxOpen int    `koanf:"max_open" validate:"gte=1"`
		MaxIdle int    `koanf:"max_idle" validate:"gte=0"`
	} `koanf:"database"`

	AMQP struct {
		URL   string `koanf:"url"` // empty disables the broker trigger
		Queue string `koanf:"queue"`
	} `koanf:"amqp"`

	Crypto struct {
		// MasterKey is hex or base64 of exactly 32 bytes. When empty, the
		// key is fetched from Vault using the path and field below.
		MasterKey  string `koanf:"master_key"`
		VaultPath  string `koanf:"vault_path"`
		VaultField string `koanf:"vault_field"`
	} `koanf:"crypto"`

	Worker struct {
		MetricsAddr  string        `koanf:"metrics_addr"`
		PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
		BatchSize    int           `koanf:"batch_size" validate:"gte=1,lte=50"`
		Concurrency  int           `koanf:"concurrency" validate:"gte=1"`
		SendTimeout  time.Duration `koanf:"send_timeout" validate:"gt=0"`
		MaxAttempts  int           `koanf:"max_attempts" validate:"gte=1"`
		RetryBase    time.Duration `koanf:"retry_base" validate:"gt=0"`
		RetryCap     time.Duration `koanf:"retry_cap" validate:"gt=0"`
		QuotaDelay   time.Duration `koanf:"quota_delay" validate:"gt=0"`
	} `koanf:"worker"`

	Sender struct {
		Mode    string `koanf:"mode" validate:"oneof=brevo mock"`
		BaseURL string `koanf:"base_url"`
	} `koanf:"sender"`

	Log struct {
		Level string `koanf:"level" validate:"oneof=debug info warn error"`
		Dir   string `koanf:"dir"`
	} `koanf:"log"`

	// Plans overrides or extends the built-in plan table. -1 = unlimited.
	Plans map[string]PlanLimits `koanf:"plans"`
}

type PlanLimits struct {
	EmailsPerDay   int64 `koanf:"emails_per_day"`
	EmailsPerMonth int64 `koanf:"emails_per_month"`
	Campaigns      int64 `koanf:"campaigns"`
	Contacts       int64 `koanf:"contacts"`
	Templates      int64 `koanf:"templates"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.ListenAddr = ":8080"
	cfg.Database.MaxOpen = 15
	cfg.Database.MaxIdle = 5
	cfg.AMQP.Queue = "campaign_dispatch"
	cfg.Crypto.VaultField = "master_key"
	cfg.Worker.MetricsAddr = ":9090"
	cfg.Worker.PollInterval = 5 * time.Second
	cfg.Worker.BatchSize = 25
	cfg.Worker.Concurrency = 4
	cfg.Worker.SendTimeout = 15 * time.Second
	cfg.Worker.MaxAttempts = 3
	cfg.Worker.RetryBase = 30 * time.Second
	cfg.Worker.RetryCap = 10 * time.Minute
	cfg.Worker.QuotaDelay = 10 * time.Minute
	cfg.Sender.Mode = "brevo"
	cfg.Log.Level = "info"
	return cfg
}

// Load builds the Config from .env, the optional YAML file, and the
// environment overlay, then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	yamlPath := os.Getenv("MAILKITE_CONFIG")
	if yamlPath == "" {
		yamlPath = "config.yaml"
	}
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider("MAILKITE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MAILKITE_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config invalid: %w", err)
	}
	return cfg, nil
}
