// Package config loads rotary-phone daemon settings from defaults, an
// optional YAML file, an optional .env file and ROTARY_* environment
// variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/rotary-phone/internal/coordinator"
	"github.com/sweeney/rotary-phone/internal/debounce"
	"github.com/sweeney/rotary-phone/internal/gpio"
	"github.com/sweeney/rotary-phone/internal/monitor"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROTARY_"

// Config holds the daemon settings.
type Config struct {
	Chip             string        `yaml:"chip"`
	HookPin          int           `yaml:"hook_pin"`
	DialPin          int           `yaml:"dial_pin"`
	Settle           time.Duration `yaml:"settle"`
	QuietTimeout     time.Duration `yaml:"quiet_timeout"`
	HookWait         time.Duration `yaml:"hook_wait"`
	AssistantDigit   int           `yaml:"assistant_digit"`
	AssistantCommand string        `yaml:"assistant_command"`
	Broker           string        `yaml:"broker"`
	ClientID         string        `yaml:"client_id"`
	Heartbeat        time.Duration `yaml:"heartbeat"`
	HTTPAddr         string        `yaml:"http"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Chip:           gpio.DefaultChip,
		HookPin:        gpio.DefaultPinHook,
		DialPin:        gpio.DefaultPinDial,
		Settle:         debounce.DefaultSettle,
		QuietTimeout:   monitor.DefaultQuietTimeout,
		HookWait:       monitor.DefaultHookWait,
		AssistantDigit: coordinator.DefaultAssistantDigit,
		ClientID:       "rotary-phone",
		Heartbeat:      15 * time.Minute,
	}
}

// Load builds a Config. path names a YAML file and may be empty. A .env
// file in the working directory is read if present.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"CHIP":              &c.Chip,
		"ASSISTANT_COMMAND": &c.AssistantCommand,
		"BROKER":            &c.Broker,
		"CLIENT_ID":         &c.ClientID,
		"HTTP":              &c.HTTPAddr,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HOOK_PIN":        &c.HookPin,
		"DIAL_PIN":        &c.DialPin,
		"ASSISTANT_DIGIT": &c.AssistantDigit,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	durs := map[string]*time.Duration{
		"SETTLE":        &c.Settle,
		"QUIET_TIMEOUT": &c.QuietTimeout,
		"HOOK_WAIT":     &c.HookWait,
		"HEARTBEAT":     &c.Heartbeat,
	}
	for key, dst := range durs {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.Chip == "":
		return errors.New("chip must be set")
	case c.HookPin < 0 || c.DialPin < 0:
		return fmt.Errorf("pins must be non-negative (hook=%d dial=%d)", c.HookPin, c.DialPin)
	case c.HookPin == c.DialPin:
		return fmt.Errorf("hook and dial pins must differ (both %d)", c.HookPin)
	case c.Settle <= 0:
		return fmt.Errorf("settle must be positive, got %v", c.Settle)
	case c.QuietTimeout <= c.Settle:
		return fmt.Errorf("quiet_timeout (%v) must exceed settle (%v)", c.QuietTimeout, c.Settle)
	case c.HookWait <= 0:
		return fmt.Errorf("hook_wait must be positive, got %v", c.HookWait)
	case c.AssistantDigit < 0:
		return fmt.Errorf("assistant_digit must be non-negative, got %d", c.AssistantDigit)
	case c.Heartbeat < 0:
		return fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat)
	case c.Broker != "" && c.ClientID == "":
		return errors.New("client_id must be set when broker is configured")
	}
	return nil
}

// AssistantArgv splits AssistantCommand into program and arguments.
// It returns nil when no command is configured.
func (c Config) AssistantArgv() []string {
	argv := strings.Fields(c.AssistantCommand)
	if len(argv) == 0 {
		return nil
	}
	return argv
}
