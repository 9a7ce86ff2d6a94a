// Package monitor runs a single poll of the device: read the previous state,
// take a reading, notify on threshold crossings and persist the new state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mascanio/dyson-alerts/alert"
	"github.com/mascanio/dyson-alerts/metrics"
	"github.com/mascanio/dyson-alerts/providers/dyson"
	"github.com/mascanio/dyson-alerts/providers/pushover"
	"github.com/mascanio/dyson-alerts/state"
)

type Store interface {
	Load() (state.State, error)
	Save(state.State) error
}

type Device interface {
	Connect(ctx context.Context) error
	AirQuality() (metrics.AirQuality, error)
	Disconnect()
}

// productStater is implemented by devices that also report their operating
// state alongside the sensor readings.
type productStater interface {
	ProductState() map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

type Options struct {
	MaxHumidity int
	Logger      logrus.FieldLogger

	// Recorder and PushgatewayURL are optional. Metrics are only pushed
	// after a successful run.
	Recorder       *metrics.Recorder
	PushgatewayURL string
}

// Run performs one poll. Any error aborts the run before the new state is
// saved, so the next run sees the same previous reading.
func Run(ctx context.Context, opts Options, store Store, device Device, notifier Notifier) error {
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	prev, err := store.Load()
	if err != nil {
		log.WithError(err).Error("Could not read the state file.")
		return fmt.Errorf("load state: %w", err)
	}

	if err := device.Connect(ctx); err != nil {
		log.WithError(err).Error(DeviceErrorMessage(err))
		return fmt.Errorf("connect device: %w", err)
	}
	defer device.Disconnect()

	aq, err := device.AirQuality()
	if err != nil {
		log.WithError(err).Error(DeviceErrorMessage(err))
		return fmt.Errorf("read device: %w", err)
	}
	logReading(log, aq)
	if ps, ok := device.(productStater); ok {
		logProductState(log, ps.ProductState())
	}
	log.Infof("Previous humidity reading was: %s%%", formatPrevious(prev.LastHumidity))

	for _, n := range alert.Humidity(aq.Humidity, prev.LastHumidity, opts.MaxHumidity) {
		log.WithField("kind", n.Kind).Infof("Sending Pushover alert (title: '%s')", n.Title)
		if err := notifier.Notify(ctx, n.Title, n.Message); err != nil {
			log.WithError(err).Error(NotifyErrorMessage(err))
			return fmt.Errorf("send %s alert: %w", n.Kind, err)
		}
		if opts.Recorder != nil {
			opts.Recorder.AlertSent(string(n.Kind))
		}
	}

	if err := store.Save(prev.WithHumidity(aq.Humidity)); err != nil {
		log.WithError(err).Error("Could not write the state file.")
		return fmt.Errorf("save state: %w", err)
	}

	if opts.Recorder != nil {
		opts.Recorder.Observe(aq)
		opts.Recorder.Threshold(opts.MaxHumidity)
		if opts.PushgatewayURL != "" {
			if err := opts.Recorder.Push(ctx, opts.PushgatewayURL); err != nil {
				log.WithError(err).WithField("url", opts.PushgatewayURL).Warn("Could not push metrics.")
			}
		}
	}

	log.Info("Done!")
	return nil
}

func logReading(log logrus.FieldLogger, aq metrics.AirQuality) {
	log.Infof("PM2.5:     %d", aq.PM25)
	log.Infof("PM10:      %d", aq.PM10)
	log.Infof("VOC:       %g", aq.VOC)
	log.Infof("NO2:       %g", aq.NO2)
	log.Infof("Temp:      %.1f", aq.Celsius())
	log.Infof("Humidity:  %d", aq.Humidity)
}

// Product state fields worth logging, in display order.
var productFields = []struct{ key, label string }{
	{"fpwr", "Fan power"},
	{"fnsp", "Fan speed"},
	{"auto", "Auto mode"},
}

func logProductState(log logrus.FieldLogger, ps map[string]string) {
	for _, f := range productFields {
		if v, ok := ps[f.key]; ok {
			log.Infof("%-10s %s", f.label+":", v)
		}
	}
}

func formatPrevious(v *int) string {
	if v == nil {
		return "None"
	}
	return strconv.Itoa(*v)
}

// DeviceErrorMessage returns the log line for a device failure.
func DeviceErrorMessage(err error) string {
	switch {
	case errors.Is(err, dyson.ErrInvalidCredential):
		return "Invalid device credentials provided!"
	case errors.Is(err, dyson.ErrConnectionRefused):
		return "Connection refused by target device."
	case errors.Is(err, dyson.ErrConnectTimeout):
		return "Connection timed out."
	case errors.Is(err, dyson.ErrNotConnected):
		return "Device is not connected."
	case errors.Is(err, dyson.ErrSensorUnavailable):
		return "Humidity sensor is not reporting a value."
	default:
		return "An unexpected exception occurred."
	}
}

// NotifyErrorMessage returns the log line for a failed alert delivery.
func NotifyErrorMessage(err error) string {
	var pErr *pushover.Error
	if !errors.As(err, &pErr) {
		return "Request error when sending alert!"
	}
	switch pErr.Kind {
	case pushover.KindHTTP:
		return "HTTP error when sending alert!"
	case pushover.KindConnection:
		return "Connection error when sending alert!"
	case pushover.KindTimeout:
		return "Timeout error when sending alert!"
	default:
		return "Request error when sending alert!"
	}
}
