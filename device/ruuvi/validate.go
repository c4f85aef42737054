package ruuvi

import "github.com/robertof/go-ruuvi-station/device"

const (
  TemperatureMin = -163.835
  TemperatureMax = 163.835
  HumidityMin = 0.0
  HumidityMax = 163.835
  PressureMin = 50000.0
  PressureMax = 115534.0
  AccelerationMin = -32.767
  AccelerationMax = 32.767
  TxPowerMin = -40.0
  TxPowerMax = 20.0
  VoltageMin = 1.600
  VoltageMax = 3.646
  MovementMin = 0
  MovementMax = 254
  SequenceMin = 0
  SequenceMax = 65534
)

// Validate clears every field of m that falls outside of the range the sensor can produce. The
// encodings use the values just past those ranges as "not available" markers.
func Validate(m *device.Measurement) {
  clearFloat(&m.Temperature, TemperatureMin, TemperatureMax)
  clearFloat(&m.Humidity, HumidityMin, HumidityMax)
  clearFloat(&m.Pressure, PressureMin, PressureMax)
  clearFloat(&m.AccelX, AccelerationMin, AccelerationMax)
  clearFloat(&m.AccelY, AccelerationMin, AccelerationMax)
  clearFloat(&m.AccelZ, AccelerationMin, AccelerationMax)
  clearFloat(&m.TxPower, TxPowerMin, TxPowerMax)
  clearFloat(&m.Voltage, VoltageMin, VoltageMax)
  clearInt(&m.MovementCounter, MovementMin, MovementMax)
  clearInt(&m.MeasurementSequence, SequenceMin, SequenceMax)
}

func clearFloat(v **float64, min, max float64) {
  if *v != nil && (**v < min || **v > max) {
    *v = nil
  }
}

func clearInt(v **int, min, max int) {
  if *v != nil && (**v < min || **v > max) {
    *v = nil
  }
}
