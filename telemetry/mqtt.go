package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

const publishTimeout = 2 * time.Second

// Payload encodings understood by NewMQTT.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// MQTT publishes events to <topic>/<kind>, encoded as JSON or msgpack.
type MQTT struct {
	client mqtt.Client
	logger *slog.Logger
	topic  string
	encode func(v any) ([]byte, error)
}

func NewMQTT(broker string, port int16, username, password, topic, encoding string) *MQTT {
	logger := slog.Default().With(slog.String("module", "telemetry"))
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID("elprice")
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("MQTT connected", slog.String("broker", broker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	}

	mqttLog := slog.Default().With(slog.String("module", "mqtt"))
	mqtt.CRITICAL = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.ERROR = newMqttLogger(mqttLog, slog.LevelError)
	mqtt.WARN = newMqttLogger(mqttLog, slog.LevelWarn)

	return newMQTT(mqtt.NewClient(opts), logger, topic, encoding)
}

func newMQTT(client mqtt.Client, logger *slog.Logger, topic, encoding string) *MQTT {
	encode := json.Marshal
	if encoding == EncodingMsgpack {
		encode = msgpack.Marshal
	}
	return &MQTT{client: client, logger: logger, topic: topic, encode: encode}
}

// Connect starts connecting in the background, the client keeps retrying
// until the broker is reachable.
func (m *MQTT) Connect() {
	m.client.Connect()
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) Publish(_ context.Context, e Event) {
	if !m.client.IsConnectionOpen() {
		m.logger.Debug("MQTT not connected, event dropped", slog.String("kind", string(e.Kind)))
		return
	}

	payload, err := m.encode(e)
	if err != nil {
		m.logger.Error("encoding event", slog.Any("error", err))
		return
	}

	topic := m.topic + "/" + string(e.Kind)
	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.logger.Warn("MQTT publish timed out", slog.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("MQTT publish failed", slog.String("topic", topic), slog.Any("error", err))
	}
}
