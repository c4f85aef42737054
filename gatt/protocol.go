package gatt

import (
  "bytes"
  "encoding/binary"
  "errors"
  "fmt"
  "time"

  "github.com/robertof/go-ruuvi-station/ble"
  "github.com/robertof/go-ruuvi-station/device"
)

var (
  IdentityServiceUUID = ble.UUID16(0x180a)
  ManufacturerUUID = ble.UUID16(0x2a29)
  ModelUUID = ble.UUID16(0x2a24)
  FirmwareUUID = ble.UUID16(0x2a26)

  // Nordic UART service, used by the tag to stream its history log.
  TransferServiceUUID = ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
  TransferWriteUUID = ble.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
  TransferNotifyUUID = ble.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

var (
  ErrShortFrame = errors.New("log frame too short")
  ErrUnknownFrameType = errors.New("unknown log frame type")
)

const (
  heartbeatMarker = 0x05
  endMarkerLength = 8
  logFrameLength = 11

  // all ones: the tag has no value for this point.
  valueNotPresent = 0xffffffff
)

var (
  readCommandHeader = []byte{0x3a, 0x3a, 0x11}

  temperatureFrame = [3]byte{0x3a, 0x30, 0x10}
  humidityFrame = [3]byte{0x3a, 0x31, 0x10}
  pressureFrame = [3]byte{0x3a, 0x32, 0x10}

  endMarker = bytes.Repeat([]byte{0xff}, endMarkerLength)
)

// ReadCommand builds the frame asking the tag for every log point recorded after from. A zero from
// asks for the whole history.
func ReadCommand(now, from time.Time) []byte {
  cmd := make([]byte, 0, logFrameLength)
  cmd = append(cmd, readCommandHeader...)
  cmd = binary.BigEndian.AppendUint32(cmd, unixSeconds(now))
  cmd = binary.BigEndian.AppendUint32(cmd, unixSeconds(from))

  return cmd
}

func unixSeconds(t time.Time) uint32 {
  if t.IsZero() || t.Unix() < 0 {
    return 0
  }

  return uint32(t.Unix())
}

type FrameKind int

const (
  FrameLog FrameKind = iota
  FrameHeartbeat
  FrameEnd
)

func (k FrameKind) String() string {
  switch k {
  case FrameHeartbeat:
    return "heartbeat"
  case FrameEnd:
    return "end"
  default:
    return "log"
  }
}

func Classify(frame []byte) FrameKind {
  if len(frame) > 0 && frame[0] == heartbeatMarker {
    return FrameHeartbeat
  }

  if len(frame) >= endMarkerLength && bytes.Equal(frame[len(frame) - endMarkerLength:], endMarker) {
    return FrameEnd
  }

  return FrameLog
}

// LogFrame is one value of one log point: [type:3][timestamp:4][value:4], big endian.
type LogFrame struct {
  Type [3]byte
  Timestamp time.Time
  Value uint32
}

func ParseLogFrame(frame []byte) (f LogFrame, err error) {
  if len(frame) < logFrameLength {
    return f, fmt.Errorf("%w: got %d bytes, wanted %d", ErrShortFrame, len(frame), logFrameLength)
  }

  copy(f.Type[:], frame)

  switch f.Type {
  case temperatureFrame, humidityFrame, pressureFrame:
  default:
    return f, fmt.Errorf("%w: %x", ErrUnknownFrameType, f.Type)
  }

  f.Timestamp = time.Unix(int64(binary.BigEndian.Uint32(frame[3:])), 0).UTC()
  f.Value = binary.BigEndian.Uint32(frame[7:])

  return f, nil
}

func (f LogFrame) apply(r *device.LogReading) {
  switch f.Type {
  case temperatureFrame:
    r.Temperature = device.Float(float64(int32(f.Value)) / 100)
  case humidityFrame:
    r.Humidity = optionalValue(f.Value, 100)
  case pressureFrame:
    r.Pressure = optionalValue(f.Value, 1)
  }
}

func optionalValue(v uint32, divisor float64) *float64 {
  if v == valueNotPresent {
    return nil
  }

  return device.Float(float64(v) / divisor)
}

// logBatch accumulates log points in arrival order, one per timestamp.
type logBatch struct {
  addr string
  readings []device.LogReading
  index map[int64]int
}

func newLogBatch(addr string) *logBatch {
  return &logBatch{addr: addr, index: make(map[int64]int)}
}

// add merges f into the point with the same timestamp, creating it when needed. It reports whether
// a new point was created.
func (b *logBatch) add(f LogFrame) bool {
  key := f.Timestamp.Unix()
  i, ok := b.index[key]

  if !ok {
    i = len(b.readings)
    b.index[key] = i
    b.readings = append(b.readings, device.LogReading{Addr: b.addr, Timestamp: f.Timestamp})
  }

  f.apply(&b.readings[i])

  return !ok
}

func (b *logBatch) len() int {
  return len(b.readings)
}

// finish returns the batch without the all-zero points left over by erased flash pages.
func (b *logBatch) finish() []device.LogReading {
  readings := make([]device.LogReading, 0, len(b.readings))

  for _, r := range b.readings {
    if !r.IsZero() {
      readings = append(readings, r)
    }
  }

  return readings
}
