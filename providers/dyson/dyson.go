// Package dyson talks to a Dyson Pure Cool purifier over its local MQTT
// interface and exposes the environmental sensor readings.
package dyson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"

	"github.com/mascanio/dyson-alerts/metrics"
)

const (
	DefaultPort    = 1883
	DefaultTimeout = 10 * time.Second

	msgRequestState       = "REQUEST_CURRENT_STATE"
	msgRequestEnvironment = "REQUEST_PRODUCT_ENVIRONMENT_CURRENT_SENSOR_DATA"
	msgEnvironment        = "ENVIRONMENTAL-CURRENT-SENSOR-DATA"
	msgState              = "CURRENT-STATE"

	timeLayout = "2006-01-02T15:04:05Z"
)

var (
	ErrInvalidCredential = errors.New("invalid device credential")
	ErrConnectionRefused = errors.New("connection refused by device")
	ErrConnectTimeout    = errors.New("device connection timed out")
	ErrNotConnected      = errors.New("device is not connected")
	ErrSensorUnavailable = errors.New("humidity sensor unavailable")
)

type Config struct {
	Serial, Credential, DeviceType, Host string
	Port                                 int
	Timeout                              time.Duration
}

// mqttClient is the subset of mqtt.Client used by Device.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type Device struct {
	config    Config
	newClient func(*mqtt.ClientOptions) mqttClient

	client       mqttClient
	messages     chan []byte
	lost         chan error
	environment  map[string]json.RawMessage
	productState map[string]json.RawMessage
}

type message struct {
	Msg          string                     `json:"msg"`
	Time         string                     `json:"time,omitempty"`
	Data         map[string]json.RawMessage `json:"data,omitempty"`
	ProductState map[string]json.RawMessage `json:"product-state,omitempty"`
}

func New(config Config) *Device {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Device{
		config: config,
		newClient: func(opts *mqtt.ClientOptions) mqttClient {
			return mqtt.NewClient(opts)
		},
	}
}

func (d *Device) statusTopic() string {
	return fmt.Sprintf("%s/%s/status/current", d.config.DeviceType, d.config.Serial)
}

func (d *Device) commandTopic() string {
	return fmt.Sprintf("%s/%s/command", d.config.DeviceType, d.config.Serial)
}

func (d *Device) options() *mqtt.ClientOptions {
	broker := "tcp://" + net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
	return mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(uuid.NewString()).
		SetUsername(d.config.Serial).
		SetPassword(d.config.Credential).
		SetProtocolVersion(3).
		SetConnectTimeout(d.config.Timeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case d.lost <- err:
			default:
			}
		})
}

// Connect opens the MQTT session and blocks until the device has answered
// with a full set of environmental readings.
func (d *Device) Connect(ctx context.Context) error {
	d.messages = make(chan []byte, 16)
	d.lost = make(chan error, 1)

	client := d.newClient(d.options())
	if err := d.wait(ctx, client.Connect()); err != nil {
		return connectError(err)
	}
	d.client = client

	if err := d.wait(ctx, client.Subscribe(d.statusTopic(), 1, d.onMessage)); err != nil {
		d.Disconnect()
		return fmt.Errorf("subscribe %s: %w", d.statusTopic(), err)
	}
	for _, req := range []string{msgRequestState, msgRequestEnvironment} {
		if err := d.request(ctx, req); err != nil {
			d.Disconnect()
			return err
		}
	}

	if err := d.awaitEnvironment(ctx); err != nil {
		d.Disconnect()
		return err
	}
	return nil
}

func (d *Device) onMessage(_ mqtt.Client, msg mqtt.Message) {
	select {
	case d.messages <- msg.Payload():
	default:
	}
}

func (d *Device) request(ctx context.Context, msg string) error {
	if !d.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(message{Msg: msg, Time: time.Now().UTC().Format(timeLayout)})
	if err != nil {
		return err
	}
	if err := d.wait(ctx, d.client.Publish(d.commandTopic(), 1, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", msg, err)
	}
	return nil
}

func (d *Device) awaitEnvironment(ctx context.Context) error {
	timer := time.NewTimer(d.config.Timeout)
	defer timer.Stop()

	for {
		select {
		case payload := <-d.messages:
			var m message
			if err := json.Unmarshal(payload, &m); err != nil {
				continue
			}
			switch m.Msg {
			case msgEnvironment:
				d.environment = m.Data
				return nil
			case msgState:
				d.productState = m.ProductState
			}
		case err := <-d.lost:
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		case <-timer.C:
			return ErrConnectTimeout
		case <-ctx.Done():
			return contextError(ctx.Err())
		}
	}
}

// wait blocks until the token completes, the configured timeout passes or
// ctx is done.
func (d *Device) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(d.config.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return contextError(ctx.Err())
	}
}

func (d *Device) Disconnect() {
	if d.client != nil {
		d.client.Disconnect(250)
		d.client = nil
	}
}

// ProductState returns the raw fields of the last CURRENT-STATE message, if
// the device sent one during Connect.
func (d *Device) ProductState() map[string]string {
	out := make(map[string]string, len(d.productState))
	for k, raw := range d.productState {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out[k] = s
	}
	return out
}

// AirQuality returns the readings received during Connect.
func (d *Device) AirQuality() (metrics.AirQuality, error) {
	if d.environment == nil {
		return metrics.AirQuality{}, ErrNotConnected
	}
	return parseEnvironment(d.config.Serial, d.environment)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	return err
}

func connectError(err error) error {
	switch {
	case errors.Is(err, ErrConnectTimeout), errors.Is(err, ErrNotConnected):
		return err
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword),
		errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion),
		errors.Is(err, packets.ErrorRefusedIDRejected),
		errors.Is(err, packets.ErrorRefusedServerUnavailable),
		errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	}
	return err
}
