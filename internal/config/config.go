// Package config defines the engine configuration surface and a loader
// with the precedence defaults < YAML file < environment variables <
// command-line overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from a Go duration string
// ("500ms", "2s") or a bare integer number of seconds, so every config
// source accepts the same syntax.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		secs, serr := strconv.Atoi(s)
		if serr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		parsed = time.Duration(secs) * time.Second
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete configuration for the permission engine.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Target  TargetConfig  `yaml:"target"`
	Status  StatusConfig  `yaml:"status"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig holds the batch-engine knobs.
type EngineConfig struct {
	// ThreadCount is the worker pool size, bounded 1-10. The batch
	// count always equals the thread count.
	ThreadCount int `yaml:"thread_count" env:"PE_ENGINE_THREAD_COUNT"`

	// BatchStrategy selects the partition strategy: round-robin,
	// power-state or complexity.
	BatchStrategy string `yaml:"batch_strategy" env:"PE_ENGINE_BATCH_STRATEGY"`

	// MaxOperationRetries is how many additional attempts a transient
	// failure gets after the first one.
	MaxOperationRetries int `yaml:"max_operation_retries" env:"PE_ENGINE_MAX_OPERATION_RETRIES"`

	// RetryDelay is the backoff base; retry n waits RetryDelay*2^(n-1).
	RetryDelay Duration `yaml:"retry_delay" env:"PE_ENGINE_RETRY_DELAY"`

	// ProgressInterval is the progress reporter's polling interval.
	ProgressInterval Duration `yaml:"progress_interval" env:"PE_ENGINE_PROGRESS_INTERVAL"`
}

// TargetConfig holds the management-plane endpoint the HTTP executor
// drives. Ignored in dry-run mode.
type TargetConfig struct {
	BaseURL        string   `yaml:"base_url" env:"PE_TARGET_BASE_URL"`
	APIToken       string   `yaml:"api_token" env:"PE_TARGET_API_TOKEN"`
	RequestTimeout Duration `yaml:"request_timeout" env:"PE_TARGET_REQUEST_TIMEOUT"`
}

// StatusConfig holds the optional HTTP status surface. An empty address
// disables it.
type StatusConfig struct {
	Address      string   `yaml:"address" env:"PE_STATUS_ADDRESS"`
	ReadTimeout  Duration `yaml:"read_timeout" env:"PE_STATUS_READ_TIMEOUT"`
	WriteTimeout Duration `yaml:"write_timeout" env:"PE_STATUS_WRITE_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the stderr diagnostic level: debug, info, warn, error.
	Level string `yaml:"level" env:"PE_LOG_LEVEL"`

	// RunLogPath is where the serialized per-operation run log goes.
	// Empty discards it.
	RunLogPath string `yaml:"run_log_path" env:"PE_LOG_RUN_LOG_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			ThreadCount:         4,
			BatchStrategy:       "round-robin",
			MaxOperationRetries: 3,
			RetryDelay:          Duration(2 * time.Second),
			ProgressInterval:    Duration(5 * time.Second),
		},
		Target: TargetConfig{
			RequestTimeout: Duration(30 * time.Second),
		},
		Status: StatusConfig{
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	overrides  map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		overrides: make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithOverride records a dot-notation command-line override, e.g.
// "engine.thread_count" = "8".
func (l *Loader) WithOverride(path, value string) *Loader {
	l.overrides[path] = value
	return l
}

// Load loads configuration from all sources in precedence order and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	for key, value := range l.overrides {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile merges a YAML file over the defaults. A missing file is
// not an error.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// applyEnvToStruct recursively applies env-tagged environment variables
// to struct fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setConfigValue sets a configuration value by dot-notation path, using
// the yaml tag names.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		t := v.Type()
		idx := -1
		for f := 0; f < t.NumField(); f++ {
			tag := strings.Split(t.Field(f).Tag.Get("yaml"), ",")[0]
			if tag == part || strings.EqualFold(t.Field(f).Name, part) {
				idx = f
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("unknown config path: %s", path)
		}

		field := v.Field(idx)
		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a section", part)
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from its string form.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(Duration(0)) || field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				// Bare integers are taken as seconds.
				secs, serr := strconv.Atoi(value)
				if serr != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
				d = time.Duration(secs) * time.Second
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}

// LoadFromFile loads and validates configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
