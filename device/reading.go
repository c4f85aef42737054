package device

import (
  "fmt"
  "strings"
  "time"
)

// Measurement is a decoded sensor advertisement. Optional fields are nil both when the data
// format does not carry them and when the transmitted value was out of range.
type Measurement struct {
  Addr string
  DataFormat int
  RSSI int

  Temperature *float64 // Celsius
  Humidity *float64 // %
  Pressure *float64 // Pa
  AccelX *float64 // g
  AccelY *float64
  AccelZ *float64
  Voltage *float64 // V
  TxPower *float64 // dBm
  MovementCounter *int
  MeasurementSequence *int

  Connectable bool
}

func (m Measurement) String() string {
  var fields []string

  appendFloat := func(name, format string, v *float64) {
    if v != nil {
      fields = append(fields, name + "=" + fmt.Sprintf(format, *v))
    }
  }

  appendFloat("Temperature", "%.2f", m.Temperature)
  appendFloat("Humidity", "%.2f%%", m.Humidity)
  appendFloat("Pressure", "%.0f", m.Pressure)
  appendFloat("AccelX", "%.3f", m.AccelX)
  appendFloat("AccelY", "%.3f", m.AccelY)
  appendFloat("AccelZ", "%.3f", m.AccelZ)
  appendFloat("Voltage", "%.3f", m.Voltage)
  appendFloat("TxPower", "%.0f", m.TxPower)

  if m.MovementCounter != nil {
    fields = append(fields, fmt.Sprintf("Movement=%d", *m.MovementCounter))
  }

  if m.MeasurementSequence != nil {
    fields = append(fields, fmt.Sprintf("Sequence=%d", *m.MeasurementSequence))
  }

  return fmt.Sprintf("Measurement[Addr=%v,Format=%#x,RSSI=%d,Connectable=%v,%v]",
    m.Addr, m.DataFormat, m.RSSI, m.Connectable, strings.Join(fields, ","))
}

// LogReading is one point of the history log downloaded from a tag.
type LogReading struct {
  Addr string
  Timestamp time.Time

  Temperature *float64
  Humidity *float64
  Pressure *float64
}

// IsZero reports whether every value is present and exactly zero, which is what the tag sends for
// flash pages that were erased but never written.
func (r LogReading) IsZero() bool {
  return r.Temperature != nil && *r.Temperature == 0 &&
    r.Humidity != nil && *r.Humidity == 0 &&
    r.Pressure != nil && *r.Pressure == 0
}

func (r LogReading) String() string {
  format := func(v *float64) string {
    if v == nil {
      return "n/a"
    }
    return fmt.Sprintf("%.2f", *v)
  }

  return fmt.Sprintf("LogReading[Addr=%v,Timestamp=%v,Temperature=%v,Humidity=%v,Pressure=%v]",
    r.Addr, r.Timestamp.UTC().Format(time.RFC3339), format(r.Temperature), format(r.Humidity),
    format(r.Pressure))
}

// Float and Int are helpers to build optional fields.
func Float(v float64) *float64 {
  return &v
}

func Int(v int) *int {
  return &v
}
