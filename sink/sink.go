package sink

import (
  "context"
  "errors"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
)

// Sink forwards measurements and downloaded logs to an external system.
type Sink interface {
  PublishMeasurement(ctx context.Context, name string, m device.Measurement) error
  PublishLogs(ctx context.Context, name string, readings []device.LogReading) error
  Close() error
}

type MeasurementPayload struct {
  Name string `json:"name"`
  Addr string `json:"addr"`
  Timestamp time.Time `json:"timestamp"`
  DataFormat int `json:"data_format"`
  RSSI int `json:"rssi"`
  Connectable bool `json:"connectable"`

  Temperature *float64 `json:"temperature_c,omitempty"`
  Humidity *float64 `json:"humidity_pct,omitempty"`
  Pressure *float64 `json:"pressure_pa,omitempty"`
  AccelX *float64 `json:"accel_x_g,omitempty"`
  AccelY *float64 `json:"accel_y_g,omitempty"`
  AccelZ *float64 `json:"accel_z_g,omitempty"`
  Voltage *float64 `json:"battery_v,omitempty"`
  TxPower *float64 `json:"tx_power_dbm,omitempty"`
  MovementCounter *int `json:"movement_counter,omitempty"`
  Sequence *int `json:"sequence,omitempty"`
}

func NewMeasurementPayload(name string, m device.Measurement, ts time.Time) MeasurementPayload {
  return MeasurementPayload{
    Name: name,
    Addr: m.Addr,
    Timestamp: ts,
    DataFormat: m.DataFormat,
    RSSI: m.RSSI,
    Connectable: m.Connectable,
    Temperature: m.Temperature,
    Humidity: m.Humidity,
    Pressure: m.Pressure,
    AccelX: m.AccelX,
    AccelY: m.AccelY,
    AccelZ: m.AccelZ,
    Voltage: m.Voltage,
    TxPower: m.TxPower,
    MovementCounter: m.MovementCounter,
    Sequence: m.MeasurementSequence,
  }
}

type LogPoint struct {
  Timestamp time.Time `json:"timestamp"`
  Temperature *float64 `json:"temperature_c,omitempty"`
  Humidity *float64 `json:"humidity_pct,omitempty"`
  Pressure *float64 `json:"pressure_pa,omitempty"`
}

type LogsPayload struct {
  Name string `json:"name"`
  Addr string `json:"addr"`
  Points []LogPoint `json:"points"`
}

func NewLogsPayload(name string, readings []device.LogReading) LogsPayload {
  p := LogsPayload{Name: name, Points: make([]LogPoint, 0, len(readings))}

  for _, r := range readings {
    p.Addr = r.Addr
    p.Points = append(p.Points, LogPoint{
      Timestamp: r.Timestamp,
      Temperature: r.Temperature,
      Humidity: r.Humidity,
      Pressure: r.Pressure,
    })
  }

  return p
}

// Multi publishes to every sink, collecting all failures.
type Multi []Sink

func (m Multi) PublishMeasurement(ctx context.Context, name string, meas device.Measurement) error {
  var errs []error

  for _, s := range m {
    errs = append(errs, s.PublishMeasurement(ctx, name, meas))
  }

  return errors.Join(errs...)
}

func (m Multi) PublishLogs(ctx context.Context, name string, readings []device.LogReading) error {
  var errs []error

  for _, s := range m {
    errs = append(errs, s.PublishLogs(ctx, name, readings))
  }

  return errors.Join(errs...)
}

func (m Multi) Close() error {
  var errs []error

  for _, s := range m {
    errs = append(errs, s.Close())
  }

  return errors.Join(errs...)
}

// Topic builds "<prefix><sep><name><sep><kind>", skipping an empty prefix.
func topic(prefix, sep, name, kind string) string {
  if prefix == "" {
    return name + sep + kind
  }

  return prefix + sep + name + sep + kind
}
