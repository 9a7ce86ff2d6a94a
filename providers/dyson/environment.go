package dyson

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mascanio/dyson-alerts/metrics"
)

// Field names in an ENVIRONMENTAL-CURRENT-SENSOR-DATA payload.
const (
	fieldHumidity    = "hact"
	fieldTemperature = "tact"
	fieldPM25        = "pm25"
	fieldPM10        = "pm10"
	fieldVOC         = "va10"
	fieldNO2         = "noxl"
)

func parseEnvironment(serial string, data map[string]json.RawMessage) (metrics.AirQuality, error) {
	humidity, ok, err := field(data, fieldHumidity, 1)
	if err != nil {
		return metrics.AirQuality{}, err
	}
	if !ok {
		return metrics.AirQuality{}, fmt.Errorf("%w: no %s field in sensor data", ErrSensorUnavailable, fieldHumidity)
	}
	if humidity < 0 {
		return metrics.AirQuality{}, fmt.Errorf("%w: sensor reports %s", ErrSensorUnavailable, sentinelName(humidity))
	}

	aq := metrics.AirQuality{Humidity: int(humidity), Device: serial}
	optional := []struct {
		name    string
		divisor float64
		set     func(float64)
	}{
		{fieldTemperature, 10, func(v float64) { aq.Temperature = v }},
		{fieldPM25, 1, func(v float64) { aq.PM25 = int(v) }},
		{fieldPM10, 1, func(v float64) { aq.PM10 = int(v) }},
		{fieldVOC, 10, func(v float64) { aq.VOC = v }},
		{fieldNO2, 10, func(v float64) { aq.NO2 = v }},
	}
	for _, f := range optional {
		v, ok, err := field(data, f.name, f.divisor)
		if err != nil {
			return metrics.AirQuality{}, err
		}
		if !ok {
			v = metrics.SensorOff
		}
		f.set(v)
	}
	return aq, nil
}

// field reads a numeric sensor field. The device sends zero-padded strings
// ("0045") or one of OFF, INIT and FAIL. Sentinels are returned undivided.
func field(data map[string]json.RawMessage, name string, divisor float64) (float64, bool, error) {
	raw, ok := data[name]
	if !ok {
		return 0, false, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	switch s {
	case "OFF":
		return metrics.SensorOff, true, nil
	case "INIT":
		return metrics.SensorInitializing, true, nil
	case "FAIL":
		return metrics.SensorFailed, true, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("sensor field %s: %w", name, err)
	}
	return v / divisor, true, nil
}

func sentinelName(v float64) string {
	switch v {
	case metrics.SensorOff:
		return "OFF"
	case metrics.SensorInitializing:
		return "INIT"
	case metrics.SensorFailed:
		return "FAIL"
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}
