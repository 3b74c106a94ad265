package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	SensorEntity         string
	SensorTopic          string
	ActuatorEntity       string
	ActuatorStateTopic   string
	ActuatorCommandTopic string

	// Callbacks run on paho's delivery goroutine and must not block.
	OnSensor   func(model.SensorEvent)
	OnActuator func(model.ActuatorEvent)
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bus carries sensor and actuator state in and actuator commands out.
type Bus struct {
	opts   Options
	client paho.Client
	pub    publisher
	now    func() time.Time
}

func Connect(opts Options) (*Bus, error) {
	if opts.ClientID == "" {
		opts.ClientID = "thermostat-" + uuid.NewString()[:8]
	}
	b := &Bus{opts: opts, now: time.Now}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(b.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
		})

	b.client = paho.NewClient(clientOpts)
	b.pub = b.client

	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}
	return b, nil
}

// subscribe runs on every (re)connect so subscriptions survive broker restarts.
func (b *Bus) subscribe(c paho.Client) {
	log.Info().Str("broker", b.opts.Broker).Str("client_id", b.opts.ClientID).Msg("Connected to MQTT")

	subs := map[string]paho.MessageHandler{
		b.opts.SensorTopic:        b.handleSensor,
		b.opts.ActuatorStateTopic: b.handleActuator,
	}
	for topic, handler := range subs {
		token := c.Subscribe(topic, b.opts.QoS, handler)
		if !token.WaitTimeout(connectTimeout) {
			log.Error().Str("topic", topic).Msg("MQTT subscribe timed out")
			continue
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT subscribe failed")
		}
	}
}

func (b *Bus) handleSensor(_ paho.Client, msg paho.Message) {
	state := SensorState(msg.Payload())
	log.Debug().Str("sensor", b.opts.SensorEntity).Str("state", state).Msg("Sensor report")
	if b.opts.OnSensor != nil {
		b.opts.OnSensor(model.SensorEvent{Entity: b.opts.SensorEntity, State: state, At: b.now()})
	}
}

func (b *Bus) handleActuator(_ paho.Client, msg paho.Message) {
	activity := ParseActivity(msg.Payload())
	log.Debug().Str("device", b.opts.ActuatorEntity).Str("state", activity.String()).Msg("Actuator report")
	if b.opts.OnActuator != nil {
		b.opts.OnActuator(model.ActuatorEvent{Entity: b.opts.ActuatorEntity, Activity: activity, At: b.now()})
	}
}

func (b *Bus) TurnOn(ctx context.Context, _ string) error {
	return b.publish(ctx, PayloadOn)
}

func (b *Bus) TurnOff(ctx context.Context, _ string) error {
	return b.publish(ctx, PayloadOff)
}

func (b *Bus) publish(ctx context.Context, payload string) error {
	token := b.pub.Publish(b.opts.ActuatorCommandTopic, b.opts.QoS, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", payload, b.opts.ActuatorCommandTopic, err)
	}
	return nil
}

func (b *Bus) Close() {
	if b.client != nil {
		b.client.Disconnect(1000)
	}
}

// ParseActivity maps a switch state payload to an activity. Anything that is
// not a recognizable on or off is unknown.
func ParseActivity(payload []byte) model.Activity {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "true", "1":
		return model.ActivityActive
	case "off", "false", "0":
		return model.ActivityInactive
	default:
		return model.ActivityUnknown
	}
}

// SensorState extracts the state string from a sensor payload, which is either
// the bare value or a JSON object with a "temperature" or "state" field.
func SensorState(payload []byte) string {
	raw := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(raw, "{") {
		return raw
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return raw
	}
	for _, key := range []string{"temperature", "state"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return raw
}
