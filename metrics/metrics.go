package metrics

// Sentinel values reported by the device for a sensor that is not producing data.
const (
	SensorOff          = -1
	SensorInitializing = -2
	SensorFailed       = -3
)

const kelvinOffset = 273.15

type AirQuality struct {
	PM25        int
	PM10        int
	VOC         float64
	NO2         float64
	Temperature float64 // Kelvin
	Humidity    int
	Device      string
}

// Celsius returns the temperature in degrees Celsius, or the raw sentinel
// value if the sensor is not reporting.
func (a AirQuality) Celsius() float64 {
	if a.Temperature < 0 {
		return a.Temperature
	}
	return a.Temperature - kelvinOffset
}
