package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/wippyai/impersonate-engine/client"
)

const (
	envPrefix         = "IMPERSONATE_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config is the CLI configuration.
type Config struct {
	Client      client.Config `koanf:"client"`
	Workers     int           `koanf:"workers"`
	Concurrency int           `koanf:"concurrency"`
	Verbose     bool          `koanf:"verbose"`
}

func defaultConfig() Config {
	return Config{Workers: 2, Concurrency: 4}
}

// loadConfig reads the YAML file at path, if any, then IMPERSONATE_*
// environment variables.
//
//	IMPERSONATE_CLIENT_PROFILE         -> client.profile
//	IMPERSONATE_CLIENT_REQUEST_TIMEOUT -> client.request_timeout
//	IMPERSONATE_WORKERS                -> workers
func loadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return Config{}, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps IMPERSONATE_SECTION_FIELD_NAME to section.field_name.
func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok || section != "client" {
		return lower
	}
	return section + "." + field
}

// clientFlags are the flags that override client configuration.
type clientFlags struct {
	profile   string
	timeout   time.Duration
	insecure  bool
	httpsOnly bool
}

func (f clientFlags) apply(cfg *client.Config, changed func(string) bool) {
	if changed("profile") {
		cfg.Profile = f.profile
	}
	if changed("timeout") {
		d := f.timeout
		cfg.RequestTimeout = &d
	}
	if changed("insecure") {
		v := f.insecure
		cfg.AllowInvalidCertificates = &v
	}
	if changed("https-only") {
		v := f.httpsOnly
		cfg.HTTPSOnly = &v
	}
}
