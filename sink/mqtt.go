package sink

import (
  "context"
  "encoding/json"
  "fmt"
  "sync"
  "time"

  mqtt "github.com/eclipse/paho.mqtt.golang"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/rs/zerolog/log"
)

const mqttPublishTimeout = 5 * time.Second

type MQTTOptions struct {
  // Broker URL, e.g. tcp://localhost:1883
  Broker string
  ClientID string
  TopicPrefix string
}

type MQTT struct {
  client mqtt.Client
  opts MQTTOptions

  mu sync.RWMutex
  connected bool
}

func NewMQTT(opts MQTTOptions) *MQTT {
  m := &MQTT{opts: opts}

  clientOpts := mqtt.NewClientOptions()
  clientOpts.AddBroker(opts.Broker)
  clientOpts.SetClientID(opts.ClientID)
  clientOpts.SetCleanSession(true)

  clientOpts.SetAutoReconnect(true)
  clientOpts.SetConnectRetry(true)
  clientOpts.SetConnectRetryInterval(5 * time.Second)
  clientOpts.SetMaxReconnectInterval(60 * time.Second)

  clientOpts.SetKeepAlive(30 * time.Second)
  clientOpts.SetPingTimeout(10 * time.Second)

  clientOpts.SetOnConnectHandler(func(mqtt.Client) {
    m.setConnected(true)
    log.Info().Str("Broker", opts.Broker).Msg("sink: mqtt connected")
  })

  clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
    m.setConnected(false)
    log.Warn().Err(err).Str("Broker", opts.Broker).Msg("sink: mqtt connection lost")
  })

  m.client = mqtt.NewClient(clientOpts)

  return m
}

// Connect waits for the first connection to the broker. Reconnections are handled by the client.
func (m *MQTT) Connect(ctx context.Context) error {
  token := m.client.Connect()

  const poll = 200 * time.Millisecond

  for {
    if token.WaitTimeout(poll) {
      if err := token.Error(); err != nil {
        return fmt.Errorf("mqtt connect: %w", err)
      }

      return nil
    }

    select {
    case <-ctx.Done():
      return ctx.Err()
    default:
    }
  }
}

func (m *MQTT) IsConnected() bool {
  m.mu.RLock()
  defer m.mu.RUnlock()

  return m.connected && m.client.IsConnected()
}

func (m *MQTT) setConnected(v bool) {
  m.mu.Lock()
  m.connected = v
  m.mu.Unlock()
}

func (m *MQTT) PublishMeasurement(ctx context.Context, name string, meas device.Measurement) error {
  return m.publish(ctx, topic(m.opts.TopicPrefix, "/", name, "measurement"), false,
    NewMeasurementPayload(name, meas, time.Now()))
}

func (m *MQTT) PublishLogs(ctx context.Context, name string, readings []device.LogReading) error {
  return m.publish(ctx, topic(m.opts.TopicPrefix, "/", name, "logs"), false,
    NewLogsPayload(name, readings))
}

func (m *MQTT) publish(ctx context.Context, topic string, retained bool, payload any) error {
  if !m.IsConnected() {
    return fmt.Errorf("mqtt client not connected")
  }

  data, err := json.Marshal(payload)

  if err != nil {
    return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
  }

  token := m.client.Publish(topic, 1, retained, data)

  select {
  case <-token.Done():
  case <-time.After(mqttPublishTimeout):
    return fmt.Errorf("publish timeout for topic %s", topic)
  case <-ctx.Done():
    return ctx.Err()
  }

  if err := token.Error(); err != nil {
    return fmt.Errorf("failed to publish to %s: %w", topic, err)
  }

  log.Trace().Str("Topic", topic).Msg("sink: published to mqtt")

  return nil
}

func (m *MQTT) Close() error {
  m.client.Disconnect(250)
  m.setConnected(false)

  return nil
}
