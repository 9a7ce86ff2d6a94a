package dyson

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mascanio/dyson-alerts/metrics"
)

func rawData(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestParseEnvironmentSentinels(t *testing.T) {
	aq, err := parseEnvironment("dev", rawData(t, `{"hact":"0040","tact":"OFF","pm25":"INIT","pm10":"FAIL","va10":"INIT"}`))
	if err != nil {
		t.Fatalf("parseEnvironment: %v", err)
	}
	if aq.Humidity != 40 {
		t.Errorf("humidity: %d", aq.Humidity)
	}
	if aq.Temperature != metrics.SensorOff {
		t.Errorf("temperature: %v", aq.Temperature)
	}
	if aq.PM25 != metrics.SensorInitializing || aq.PM10 != metrics.SensorFailed {
		t.Errorf("pm: %d %d", aq.PM25, aq.PM10)
	}
	if aq.VOC != metrics.SensorInitializing {
		t.Errorf("voc: %v", aq.VOC)
	}
	if aq.NO2 != metrics.SensorOff {
		t.Errorf("missing no2 should read as off, got %v", aq.NO2)
	}
}

func TestParseEnvironmentNumericValues(t *testing.T) {
	aq, err := parseEnvironment("dev", rawData(t, `{"hact":55,"pm25":7}`))
	if err != nil {
		t.Fatalf("parseEnvironment: %v", err)
	}
	if aq.Humidity != 55 || aq.PM25 != 7 {
		t.Errorf("got %+v", aq)
	}
}

func TestParseEnvironmentHumidityUnavailable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing", `{"tact":"2956"}`},
		{"off", `{"hact":"OFF"}`},
		{"initializing", `{"hact":"INIT"}`},
		{"failed", `{"hact":"FAIL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseEnvironment("dev", rawData(t, tt.data))
			if !errors.Is(err, ErrSensorUnavailable) {
				t.Errorf("got %v", err)
			}
		})
	}
}

func TestParseEnvironmentMalformed(t *testing.T) {
	_, err := parseEnvironment("dev", rawData(t, `{"hact":"0040","pm25":"abc"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrSensorUnavailable) {
		t.Errorf("malformed field should not read as unavailable: %v", err)
	}
}
