package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "dyson_alerts"

// Recorder holds the gauges for a single run. Each run gets its own registry
// since the process exits right after pushing.
type Recorder struct {
	registry *prometheus.Registry
	device   string

	humidity    prometheus.Gauge
	temperature prometheus.Gauge
	pm25        prometheus.Gauge
	pm10        prometheus.Gauge
	voc         prometheus.Gauge
	no2         prometheus.Gauge
	threshold   prometheus.Gauge
	lastRun     prometheus.Gauge
	alerts      *prometheus.CounterVec
}

func NewRecorder(device string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		device:   device,
		humidity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_humidity_percent",
			Help: "Relative humidity reported by the device",
		}),
		temperature: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_temperature_celsius",
			Help: "Temperature reported by the device",
		}),
		pm25: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_pm25",
			Help: "PM2.5 particulate matter reported by the device",
		}),
		pm10: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_pm10",
			Help: "PM10 particulate matter reported by the device",
		}),
		voc: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_voc_index",
			Help: "Volatile organic compounds index reported by the device",
		}),
		no2: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_no2_index",
			Help: "Nitrogen dioxide index reported by the device",
		}),
		threshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_humidity_threshold_percent",
			Help: "Configured humidity alert threshold",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dyson_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dyson_alerts_sent_total",
			Help: "Notifications delivered, by alert kind",
		}, []string{"kind"}),
	}
}

func (r *Recorder) Observe(aq AirQuality) {
	r.humidity.Set(float64(aq.Humidity))
	r.temperature.Set(aq.Celsius())
	r.pm25.Set(float64(aq.PM25))
	r.pm10.Set(float64(aq.PM10))
	r.voc.Set(aq.VOC)
	r.no2.Set(aq.NO2)
}

func (r *Recorder) Threshold(maxHumidity int) {
	r.threshold.Set(float64(maxHumidity))
}

func (r *Recorder) AlertSent(kind string) {
	r.alerts.WithLabelValues(kind).Inc()
}

// Push sends the registry to a Prometheus Pushgateway, replacing any metrics
// previously pushed for this device.
func (r *Recorder) Push(ctx context.Context, url string) error {
	r.lastRun.SetToCurrentTime()
	return push.New(url, pushJob).
		Gatherer(r.registry).
		Grouping("device", r.device).
		PushContext(ctx)
}
