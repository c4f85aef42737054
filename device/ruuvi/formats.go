package ruuvi

import (
  "encoding/binary"

  "github.com/robertof/go-ruuvi-station/device"
)

const (
  format3Length = 14
  format5Length = 18 // the trailing MAC address is not needed
  formatC5Length = 12

  pressureOffset = 50000
  voltageOffset = 1.6
  txPowerOffset = -40
)

var bo = binary.BigEndian

// RAWv1: humidity in 0.5% steps, temperature as sign+magnitude integer part and hundredths,
// pressure, acceleration in mG and battery voltage in mV.
func decodeFormat3(data []byte) (m device.Measurement) {
  humidity := float64(data[1]) / 2

  temperature := float64(data[2] & 0x7f) + float64(data[3]) / 100
  if data[2] & 0x80 != 0 {
    temperature = -temperature
  }

  m.Humidity = device.Float(round(humidity, 4))
  m.Temperature = device.Float(round(temperature, 4))
  m.Pressure = device.Float(round(float64(bo.Uint16(data[4:])) + pressureOffset, 2))
  m.AccelX, m.AccelY, m.AccelZ = decodeAcceleration(data[6:12])
  m.Voltage = device.Float(round(float64(bo.Uint16(data[12:])) / 1000, 4))

  return m
}

// RAWv2.
func decodeFormat5(data []byte) (m device.Measurement) {
  m.Temperature = device.Float(round(float64(int16(bo.Uint16(data[1:]))) / 200, 4))
  m.Humidity = device.Float(round(float64(bo.Uint16(data[3:])) / 400, 4))
  m.Pressure = device.Float(round(float64(bo.Uint16(data[5:])) + pressureOffset, 2))
  m.AccelX, m.AccelY, m.AccelZ = decodeAcceleration(data[7:13])
  m.Voltage, m.TxPower = decodePowerInfo(bo.Uint16(data[13:]))
  m.MovementCounter = device.Int(int(data[15]))
  m.MeasurementSequence = device.Int(int(bo.Uint16(data[16:])))

  return m
}

// RAWv2 without acceleration, sent by tags that have no accelerometer.
func decodeFormatC5(data []byte) (m device.Measurement) {
  m.Temperature = device.Float(round(float64(int16(bo.Uint16(data[1:]))) / 200, 4))
  m.Humidity = device.Float(round(float64(bo.Uint16(data[3:])) / 400, 4))
  m.Pressure = device.Float(round(float64(bo.Uint16(data[5:])) + pressureOffset, 2))
  m.Voltage, m.TxPower = decodePowerInfo(bo.Uint16(data[7:]))
  m.MovementCounter = device.Int(int(data[9]))
  m.MeasurementSequence = device.Int(int(bo.Uint16(data[10:])))

  return m
}

func decodeAcceleration(data []byte) (x, y, z *float64) {
  axis := func(b []byte) *float64 {
    return device.Float(round(float64(int16(bo.Uint16(b))) / 1000, 4))
  }

  return axis(data[0:]), axis(data[2:]), axis(data[4:])
}

// 11 bits of battery voltage above 1.6V in mV, 5 bits of tx power above -40dBm in 2dBm steps.
// All ones means "not available".
func decodePowerInfo(info uint16) (voltage, txPower *float64) {
  if rawVoltage := info >> 5; rawVoltage != 0x7ff {
    voltage = device.Float(round(float64(rawVoltage) / 1000 + voltageOffset, 4))
  }

  if rawTxPower := info & 0x1f; rawTxPower != 0x1f {
    txPower = device.Float(float64(rawTxPower) * 2 + txPowerOffset)
  }

  return voltage, txPower
}
