// Package config merges the YAML file, command-line flags and environment
// into a validated Config.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mascanio/dyson-alerts/providers/dyson"
	"github.com/mascanio/dyson-alerts/providers/pushover"
)

const (
	EnvDysonSerial       = "DYSON_SERIAL"
	EnvDysonCredential   = "DYSON_CREDENTIAL"
	EnvDysonDeviceType   = "DYSON_DEVICE_TYPE"
	EnvDysonHost         = "DYSON_HOST"
	EnvPushoverAppToken  = "PUSHOVER_APP_TOKEN"
	EnvPushoverUserToken = "PUSHOVER_USER_TOKEN"
	EnvPushgatewayURL    = "PUSHGATEWAY_URL"

	DefaultStateFile = "state.json"
)

// RequiredEnv lists the variables that must all be set.
var RequiredEnv = []string{
	EnvDysonSerial,
	EnvDysonCredential,
	EnvDysonDeviceType,
	EnvDysonHost,
	EnvPushoverAppToken,
	EnvPushoverUserToken,
}

var (
	ErrMissingEnvironment = errors.New("environment variables not set, please make sure " +
		strings.Join(RequiredEnv[:len(RequiredEnv)-1], ", ") + " and " + RequiredEnv[len(RequiredEnv)-1] + " are set")
	ErrMissingThreshold = errors.New("at least one alerting threshold must be provided")
	ErrInvalidThreshold = errors.New("humidity threshold must be between 0 and 100")
)

type Thresholds struct {
	MaxHumidity int
}

type Config struct {
	Dyson          dyson.Config
	Pushover       pushover.Config
	Thresholds     Thresholds
	StateFile      string
	PushgatewayURL string
	LogLevel       string
	LogFormat      string
}

// fileConfig is the layout of the optional YAML file.
type fileConfig struct {
	Thresholds struct {
		MaxHumidity *int `yaml:"max_humidity"`
	} `yaml:"thresholds"`
	StateFile       string        `yaml:"state_file"`
	PushgatewayURL  string        `yaml:"pushgateway_url"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	PushoverURL     string        `yaml:"pushover_url"`
	PushoverTimeout time.Duration `yaml:"pushover_timeout"`
}

// Load parses args (without the program name) and reads credentials through
// getenv. Flags take precedence over the YAML file given with --config.
func Load(args []string, getenv func(string) string) (Config, error) {
	fs := flag.NewFlagSet("dyson-alerts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath     string
		maxHumidity    int
		stateFile      string
		pushgateway    string
		logLevel       string
		logFormat      string
		connectTimeout time.Duration
	)
	fs.StringVar(&configPath, "config", "", "Path to an optional YAML config file")
	fs.IntVar(&maxHumidity, "max-humidity", 0, "The humidity alert threshold")
	fs.StringVar(&stateFile, "state-file", DefaultStateFile, "Where to keep the last reading between runs")
	fs.StringVar(&pushgateway, "pushgateway", "", "Prometheus Pushgateway URL to push readings to")
	fs.StringVar(&logLevel, "log-level", "info", "Log level")
	fs.StringVar(&logFormat, "log-format", "text", "Log format, text or json")
	fs.DurationVar(&connectTimeout, "connect-timeout", dyson.DefaultTimeout, "Timeout for the device connection")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var file fileConfig
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	pick := func(name, flagValue, fileValue string) string {
		if !set[name] && fileValue != "" {
			return fileValue
		}
		return flagValue
	}

	cfg := Config{
		StateFile:      pick("state-file", stateFile, file.StateFile),
		PushgatewayURL: pick("pushgateway", pushgateway, file.PushgatewayURL),
		LogLevel:       pick("log-level", logLevel, file.LogLevel),
		LogFormat:      pick("log-format", logFormat, file.LogFormat),
	}
	if cfg.PushgatewayURL == "" {
		cfg.PushgatewayURL = getenv(EnvPushgatewayURL)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	switch {
	case set["max-humidity"]:
		cfg.Thresholds.MaxHumidity = maxHumidity
	case file.Thresholds.MaxHumidity != nil:
		cfg.Thresholds.MaxHumidity = *file.Thresholds.MaxHumidity
	default:
		return Config{}, ErrMissingThreshold
	}
	if cfg.Thresholds.MaxHumidity < 0 || cfg.Thresholds.MaxHumidity > 100 {
		return Config{}, fmt.Errorf("%w, got %d", ErrInvalidThreshold, cfg.Thresholds.MaxHumidity)
	}

	for _, name := range RequiredEnv {
		if getenv(name) == "" {
			return Config{}, ErrMissingEnvironment
		}
	}

	timeout := connectTimeout
	if !set["connect-timeout"] && file.ConnectTimeout > 0 {
		timeout = file.ConnectTimeout
	}
	cfg.Dyson = dyson.Config{
		Serial:     getenv(EnvDysonSerial),
		Credential: getenv(EnvDysonCredential),
		DeviceType: getenv(EnvDysonDeviceType),
		Host:       getenv(EnvDysonHost),
		Timeout:    timeout,
	}
	cfg.Pushover = pushover.Config{
		AppToken:  getenv(EnvPushoverAppToken),
		UserToken: getenv(EnvPushoverUserToken),
		URL:       file.PushoverURL,
		Timeout:   file.PushoverTimeout,
	}
	return cfg, nil
}
