package ruuvi

import (
  "bytes"
  "encoding/hex"
  "math"
  "strings"

  "github.com/pkg/errors"
  "github.com/robertof/go-ruuvi-station/device"
)

// Ruuvi Innovations Ltd. Bluetooth SIG company identifier.
const ManufacturerID uint16 = 0x0499

// AD type 0xff (manufacturer specific data) followed by the company id in wire order.
var manufacturerMarker = []byte{0xff, 0x99, 0x04}

type formatDecoder struct {
  // minimum number of bytes, format byte included.
  length int
  decode func(data []byte) device.Measurement
}

var decoders = map[byte]formatDecoder{
  0x03: {length: format3Length, decode: decodeFormat3},
  0x05: {length: format5Length, decode: decodeFormat5},
  0xc5: {length: formatC5Length, decode: decodeFormatC5},
}

// DataOffset returns the index of the data format byte inside a raw advertisement, that is the
// byte right after the manufacturer marker.
func DataOffset(raw []byte) (int, bool) {
  idx := bytes.Index(raw, manufacturerMarker)

  if idx == -1 {
    return 0, false
  }

  return idx + len(manufacturerMarker), true
}

// Decode parses a raw advertisement (one or more AD structures) into a measurement. Fields outside
// of their valid range are cleared rather than failing the whole decode.
func Decode(raw []byte, addr string, rssi int) (m device.Measurement, err error) {
  offset, ok := DataOffset(raw)

  if !ok {
    return m, errors.Wrap(device.ErrInvalidData, "ruuvi: manufacturer marker not found")
  }

  if offset >= len(raw) {
    return m, errors.Wrap(device.ErrInvalidData, "ruuvi: advertisement truncated after marker")
  }

  data := raw[offset:]
  format := data[0]
  decoder, ok := decoders[format]

  if !ok {
    return m, errors.Wrapf(device.ErrUnknownFormat, "ruuvi: data format %#x", format)
  }

  if len(data) < decoder.length {
    return m, errors.Wrapf(device.ErrInvalidData,
      "ruuvi: data format %#x needs %d bytes, got %d", format, decoder.length, len(data))
  }

  m = decoder.decode(data)
  m.Addr = addr
  m.RSSI = rssi
  m.DataFormat = int(format)

  Validate(&m)

  return m, nil
}

// DecodeHex decodes an advertisement given as a hex string, as found in logs and gateway dumps.
func DecodeHex(addr string, rawHex string, rssi int) (device.Measurement, error) {
  raw, err := hex.DecodeString(strings.TrimSpace(rawHex))

  if err != nil {
    return device.Measurement{}, errors.Wrapf(device.ErrInvalidData, "ruuvi: invalid hex: %v", err)
  }

  return Decode(raw, addr, rssi)
}

func round(v float64, places int) float64 {
  p := math.Pow10(places)
  return math.Round(v * p) / p
}
