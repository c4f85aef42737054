package ruuvi_test

import (
  "encoding/binary"
  "math"
  "reflect"
  "testing"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/device/ruuvi"
)

var be = binary.BigEndian

func encodePowerInfo(m device.Measurement) uint16 {
  voltage := uint16(0x7ff)
  if m.Voltage != nil {
    voltage = uint16(math.Round((*m.Voltage - 1.6) * 1000))
  }

  txPower := uint16(0x1f)
  if m.TxPower != nil {
    txPower = uint16((*m.TxPower + 40) / 2)
  }

  return voltage << 5 | txPower
}

func encodeFormat5(m device.Measurement) []byte {
  b := make([]byte, 24)
  b[0] = 0x05
  be.PutUint16(b[1:], uint16(int16(math.Round(*m.Temperature * 200))))
  be.PutUint16(b[3:], uint16(math.Round(*m.Humidity * 400)))
  be.PutUint16(b[5:], uint16(*m.Pressure - 50000))
  be.PutUint16(b[7:], uint16(int16(math.Round(*m.AccelX * 1000))))
  be.PutUint16(b[9:], uint16(int16(math.Round(*m.AccelY * 1000))))
  be.PutUint16(b[11:], uint16(int16(math.Round(*m.AccelZ * 1000))))
  be.PutUint16(b[13:], encodePowerInfo(m))
  b[15] = byte(*m.MovementCounter)
  be.PutUint16(b[16:], uint16(*m.MeasurementSequence))

  return b
}

func encodeFormatC5(m device.Measurement) []byte {
  b := make([]byte, 18)
  b[0] = 0xc5
  be.PutUint16(b[1:], uint16(int16(math.Round(*m.Temperature * 200))))
  be.PutUint16(b[3:], uint16(math.Round(*m.Humidity * 400)))
  be.PutUint16(b[5:], uint16(*m.Pressure - 50000))
  be.PutUint16(b[7:], encodePowerInfo(m))
  b[9] = byte(*m.MovementCounter)
  be.PutUint16(b[10:], uint16(*m.MeasurementSequence))

  return b
}

func encodeFormat3(m device.Measurement) []byte {
  b := make([]byte, 14)
  b[0] = 0x03
  b[1] = byte(math.Round(*m.Humidity * 2))

  temperature := math.Abs(*m.Temperature)
  b[2] = byte(math.Floor(temperature))
  b[3] = byte(math.Round((temperature - math.Floor(temperature)) * 100))
  if *m.Temperature < 0 {
    b[2] |= 0x80
  }

  be.PutUint16(b[4:], uint16(*m.Pressure - 50000))
  be.PutUint16(b[6:], uint16(int16(math.Round(*m.AccelX * 1000))))
  be.PutUint16(b[8:], uint16(int16(math.Round(*m.AccelY * 1000))))
  be.PutUint16(b[10:], uint16(int16(math.Round(*m.AccelZ * 1000))))
  be.PutUint16(b[12:], uint16(math.Round(*m.Voltage * 1000)))

  return b
}

func withHeader(payload []byte) []byte {
  raw := []byte{0x02, 0x01, 0x06, byte(len(payload) + 3), 0xff, 0x99, 0x04}
  return append(raw, payload...)
}

func TestRoundTrip(t *testing.T) {
  cases := []struct {
    name string
    encode func(device.Measurement) []byte
    measurement device.Measurement
  }{
    {
      name:   "format 5",
      encode: encodeFormat5,
      measurement: device.Measurement{
        Addr:                testAddr,
        DataFormat:          5,
        RSSI:                -42,
        Temperature:         device.Float(21.5),
        Humidity:            device.Float(40.25),
        Pressure:            device.Float(99800),
        AccelX:              device.Float(0.016),
        AccelY:              device.Float(-0.984),
        AccelZ:              device.Float(0.032),
        Voltage:             device.Float(3.01),
        TxPower:             device.Float(4),
        MovementCounter:     device.Int(12),
        MeasurementSequence: device.Int(3456),
      },
    },
    {
      name:   "format 5 without power info",
      encode: encodeFormat5,
      measurement: device.Measurement{
        Addr:                testAddr,
        DataFormat:          5,
        Temperature:         device.Float(-12.125),
        Humidity:            device.Float(99.5),
        Pressure:            device.Float(101325),
        AccelX:              device.Float(0),
        AccelY:              device.Float(0),
        AccelZ:              device.Float(1),
        MovementCounter:     device.Int(254),
        MeasurementSequence: device.Int(0),
      },
    },
    {
      name:   "format C5",
      encode: encodeFormatC5,
      measurement: device.Measurement{
        Addr:                testAddr,
        DataFormat:          0xc5,
        RSSI:                -90,
        Temperature:         device.Float(5.25),
        Humidity:            device.Float(75),
        Pressure:            device.Float(98765),
        Voltage:             device.Float(2.5),
        TxPower:             device.Float(-8),
        MovementCounter:     device.Int(1),
        MeasurementSequence: device.Int(65534),
      },
    },
    {
      name:   "format 3",
      encode: encodeFormat3,
      measurement: device.Measurement{
        Addr:        testAddr,
        DataFormat:  3,
        RSSI:        -61,
        Temperature: device.Float(-3.75),
        Humidity:    device.Float(63.5),
        Pressure:    device.Float(100500),
        AccelX:      device.Float(-0.5),
        AccelY:      device.Float(0.25),
        AccelZ:      device.Float(0.97),
        Voltage:     device.Float(3.1),
      },
    },
  }

  for _, c := range cases {
    t.Run(c.name, func(t *testing.T) {
      raw := withHeader(c.encode(c.measurement))

      got, err := ruuvi.Decode(raw, c.measurement.Addr, c.measurement.RSSI)

      if err != nil {
        t.Fatalf("Decode(%x) got error: %v", raw, err)
      }

      if !reflect.DeepEqual(got, c.measurement) {
        t.Fatalf("Decode(%x): got %+#v, wanted %+#v", raw, got, c.measurement)
      }
    })
  }
}
