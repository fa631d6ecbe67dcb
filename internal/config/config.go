package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ent0n29/mockinterview/internal/completion"
)

// Config contains all runtime settings for the mock interview service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	CORSOrigins    []string
	// AllowedLevels is empty when any non-empty level is accepted.
	AllowedLevels []string

	LogJSON  bool
	LogDebug bool

	CompletionProvider    string
	CompletionBaseURL     string
	CompletionAPIKey      string
	GeminiAPIKey          string
	CompletionModel       string
	CompletionTemperature float64
	CompletionTimeout     time.Duration
	CompletionRPS         float64
	CompletionBurst       int

	DatabaseURL string
}

// Keys double as env names: "completion.api_key" reads COMPLETION_API_KEY.
const (
	keyBindAddr         = "app.bind_addr"
	keyShutdownTimeout  = "app.shutdown_timeout"
	keyMetricsNamespace = "app.metrics_namespace"
	keyAllowAnyOrigin   = "app.allow_any_origin"
	keyAllowedLevels    = "app.allowed_levels"
	keyCORSOrigins      = "app.cors_origins"
	keyLogJSON          = "log.json"
	keyLogDebug         = "log.debug"
	keyProvider         = "completion.provider"
	keyBaseURL          = "completion.base_url"
	keyAPIKey           = "completion.api_key"
	keyGeminiAPIKey     = "gemini.api_key"
	keyModel            = "completion.model"
	keyTemperature      = "completion.temperature"
	keyTimeout          = "completion.timeout"
	keyRPS              = "completion.rps"
	keyBurst            = "completion.burst"
	keyDatabaseURL      = "database.url"
)

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an optional YAML/TOML/JSON file underneath the
// environment. Environment variables win over file values.
func LoadFile(path string) (Config, error) {
	v := newViper()
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyBindAddr, ":5000")
	v.SetDefault(keyShutdownTimeout, "15s")
	v.SetDefault(keyMetricsNamespace, "mockinterview")
	v.SetDefault(keyAllowAnyOrigin, "false")
	v.SetDefault(keyAllowedLevels, "")
	v.SetDefault(keyCORSOrigins, "*")
	v.SetDefault(keyLogJSON, "false")
	v.SetDefault(keyLogDebug, "false")
	v.SetDefault(keyProvider, "auto")
	v.SetDefault(keyBaseURL, completion.DefaultBaseURL)
	v.SetDefault(keyAPIKey, "")
	v.SetDefault(keyGeminiAPIKey, "")
	v.SetDefault(keyModel, completion.DefaultModel)
	v.SetDefault(keyTemperature, strconv.FormatFloat(completion.DefaultTemperature, 'f', -1, 64))
	v.SetDefault(keyTimeout, completion.DefaultTimeout.String())
	v.SetDefault(keyRPS, "2")
	v.SetDefault(keyBurst, "4")
	v.SetDefault(keyDatabaseURL, "")

	// The hosted default speaks the Cerebras API; accept its usual key name.
	_ = v.BindEnv(keyAPIKey, "COMPLETION_API_KEY", "CEREBRAS_API_KEY")
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BindAddr:           stringValue(v, keyBindAddr),
		MetricsNamespace:   stringValue(v, keyMetricsNamespace),
		CompletionProvider: strings.ToLower(stringValue(v, keyProvider)),
		CompletionBaseURL:  strings.TrimRight(stringValue(v, keyBaseURL), "/"),
		CompletionAPIKey:   stringValue(v, keyAPIKey),
		GeminiAPIKey:       stringValue(v, keyGeminiAPIKey),
		CompletionModel:    stringValue(v, keyModel),
		DatabaseURL:        stringValue(v, keyDatabaseURL),
		AllowedLevels:      listValue(v, keyAllowedLevels),
		CORSOrigins:        listValue(v, keyCORSOrigins),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationValue(v, keyShutdownTimeout)
	collect(err)
	cfg.AllowAnyOrigin, err = boolValue(v, keyAllowAnyOrigin)
	collect(err)
	cfg.LogJSON, err = boolValue(v, keyLogJSON)
	collect(err)
	cfg.LogDebug, err = boolValue(v, keyLogDebug)
	collect(err)
	cfg.CompletionTemperature, err = floatValue(v, keyTemperature)
	collect(err)
	cfg.CompletionTimeout, err = durationValue(v, keyTimeout)
	collect(err)
	cfg.CompletionRPS, err = floatValue(v, keyRPS)
	collect(err)
	cfg.CompletionBurst, err = intValue(v, keyBurst)
	collect(err)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("%s must not be empty", envName(keyBindAddr))
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("%s must be at least 1s", envName(keyShutdownTimeout))
	}
	switch c.CompletionProvider {
	case "auto", "openai", "gemini", "mock":
	default:
		return fmt.Errorf("%s must be one of auto, openai, gemini, mock", envName(keyProvider))
	}
	if c.CompletionModel == "" {
		return fmt.Errorf("%s must not be empty", envName(keyModel))
	}
	if c.CompletionTemperature < 0 || c.CompletionTemperature > 2 {
		return fmt.Errorf("%s must be within [0, 2]", envName(keyTemperature))
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("%s must be positive", envName(keyTimeout))
	}
	if c.CompletionRPS <= 0 {
		return fmt.Errorf("%s must be positive", envName(keyRPS))
	}
	if c.CompletionBurst < 1 {
		return fmt.Errorf("%s must be at least 1", envName(keyBurst))
	}
	return nil
}

// CompletionConfig is the explicit gateway configuration.
func (c Config) CompletionConfig() completion.Config {
	return completion.Config{
		Provider:          c.CompletionProvider,
		BaseURL:           c.CompletionBaseURL,
		APIKey:            c.CompletionAPIKey,
		GeminiAPIKey:      c.GeminiAPIKey,
		Model:             c.CompletionModel,
		Temperature:       c.CompletionTemperature,
		Timeout:           c.CompletionTimeout,
		RequestsPerSecond: c.CompletionRPS,
		Burst:             c.CompletionBurst,
	}
}

// LevelAllowed applies the optional level policy. Matching ignores case.
func (c Config) LevelAllowed(level string) bool {
	if len(c.AllowedLevels) == 0 {
		return true
	}
	level = strings.TrimSpace(level)
	for _, allowed := range c.AllowedLevels {
		if strings.EqualFold(allowed, level) {
			return true
		}
	}
	return false
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func stringValue(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// listValue accepts a comma separated string (env) or a list (config file).
func listValue(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = val
	default:
		raw = strings.Split(v.GetString(key), ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(stringValue(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(stringValue(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return n, nil
}

func floatValue(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(stringValue(v, key), 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", envName(key), err)
	}
	return f, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	switch strings.ToLower(stringValue(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", envName(key))
	}
}
