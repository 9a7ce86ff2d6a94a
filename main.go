package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mascanio/dyson-alerts/config"
	"github.com/mascanio/dyson-alerts/metrics"
	"github.com/mascanio/dyson-alerts/monitor"
	"github.com/mascanio/dyson-alerts/providers/dyson"
	"github.com/mascanio/dyson-alerts/providers/pushover"
	"github.com/mascanio/dyson-alerts/state"
)

// runner holds everything a run takes from its surroundings.
type runner struct {
	getenv func(string) string
	dotenv string
	stderr io.Writer
	build  func(config.Config) (monitor.Store, monitor.Device, monitor.Notifier)
}

func newDeps(cfg config.Config) (monitor.Store, monitor.Device, monitor.Notifier) {
	return state.NewStore(cfg.StateFile), dyson.New(cfg.Dyson), pushover.New(cfg.Pushover)
}

func newLogger(out io.Writer, level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// withDotenv falls back to values read from a .env file for variables the
// environment leaves empty.
func withDotenv(getenv func(string) string, values map[string]string) func(string) string {
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return values[key]
	}
}

// run returns the process exit code.
func (r runner) run(ctx context.Context, args []string) int {
	boot := newLogger(r.stderr, "info", "text")

	getenv := r.getenv
	if r.dotenv != "" {
		values, err := godotenv.Read(r.dotenv)
		switch {
		case err == nil:
			getenv = withDotenv(getenv, values)
		case !errors.Is(err, fs.ErrNotExist):
			boot.WithError(err).Error("Could not read .env file")
			return 1
		}
	}

	cfg, err := config.Load(args, getenv)
	if err != nil {
		switch {
		case errors.Is(err, config.ErrMissingThreshold):
			boot.Error("You must provide at least one alerting threshold!")
		case errors.Is(err, config.ErrMissingEnvironment):
			boot.Error(err)
		default:
			boot.WithError(err).Error("Invalid configuration")
		}
		return 1
	}

	log := newLogger(r.stderr, cfg.LogLevel, cfg.LogFormat).WithField("run", uuid.NewString())

	opts := monitor.Options{
		MaxHumidity:    cfg.Thresholds.MaxHumidity,
		Logger:         log,
		Recorder:       metrics.NewRecorder(cfg.Dyson.Serial),
		PushgatewayURL: cfg.PushgatewayURL,
	}
	store, device, notifier := r.build(cfg)
	if err := monitor.Run(ctx, opts, store, device, notifier); err != nil {
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r := runner{
		getenv: os.Getenv,
		dotenv: ".env",
		stderr: os.Stderr,
		build:  newDeps,
	}
	code := r.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
