package sink

import (
  "context"
  "encoding/json"
  "errors"
  "testing"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

type recordingSink struct {
  err error
  measurements []string
  logs [][]device.LogReading
  closed bool
}

func (s *recordingSink) PublishMeasurement(_ context.Context, name string, _ device.Measurement) error {
  s.measurements = append(s.measurements, name)
  return s.err
}

func (s *recordingSink) PublishLogs(_ context.Context, _ string, readings []device.LogReading) error {
  s.logs = append(s.logs, readings)
  return s.err
}

func (s *recordingSink) Close() error {
  s.closed = true
  return s.err
}

func TestMulti(t *testing.T) {
  failure := errors.New("broker down")
  ok, failing := &recordingSink{}, &recordingSink{err: failure}
  m := Multi{failing, ok}

  err := m.PublishMeasurement(context.Background(), "kitchen", device.Measurement{})
  require.ErrorIs(t, err, failure)
  assert.Equal(t, []string{"kitchen"}, ok.measurements)

  readings := []device.LogReading{{Addr: "aa:bb:cc:dd:ee:ff"}}
  require.ErrorIs(t, m.PublishLogs(context.Background(), "kitchen", readings), failure)
  assert.Equal(t, [][]device.LogReading{readings}, ok.logs)

  require.ErrorIs(t, m.Close(), failure)
  assert.True(t, ok.closed)

  assert.NoError(t, Multi{ok}.PublishMeasurement(context.Background(), "kitchen", device.Measurement{}))
}

func TestMeasurementPayload(t *testing.T) {
  m := device.Measurement{
    Addr: "cb:b8:33:4c:88:4f",
    DataFormat: 5,
    RSSI: -60,
    Temperature: device.Float(24.3),
    MeasurementSequence: device.Int(205),
  }

  data, err := json.Marshal(NewMeasurementPayload("kitchen", m, time.Unix(100, 0).UTC()))
  require.NoError(t, err)

  assert.JSONEq(t, `{
    "name": "kitchen",
    "addr": "cb:b8:33:4c:88:4f",
    "timestamp": "1970-01-01T00:01:40Z",
    "data_format": 5,
    "rssi": -60,
    "connectable": false,
    "temperature_c": 24.3,
    "sequence": 205
  }`, string(data))
}

func TestLogsPayload(t *testing.T) {
  readings := []device.LogReading{{
    Addr: "cb:b8:33:4c:88:4f",
    Timestamp: time.Unix(100, 0).UTC(),
    Temperature: device.Float(25),
    Pressure: device.Float(101325),
  }}

  data, err := json.Marshal(NewLogsPayload("kitchen", readings))
  require.NoError(t, err)

  assert.JSONEq(t, `{
    "name": "kitchen",
    "addr": "cb:b8:33:4c:88:4f",
    "points": [{"timestamp": "1970-01-01T00:01:40Z", "temperature_c": 25, "pressure_pa": 101325}]
  }`, string(data))
}

func TestTopic(t *testing.T) {
  assert.Equal(t, "ruuvi/kitchen/logs", topic("ruuvi", "/", "kitchen", "logs"))
  assert.Equal(t, "kitchen.measurement", topic("", ".", "kitchen", "measurement"))
}
