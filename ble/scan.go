package ble

import (
  "context"
  "encoding/binary"
  "errors"
  "fmt"
  "strings"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
)

const (
  adTypeCompleteName = 0x09
  adTypeServiceData16 = 0x16
  adTypeManufacturerData = 0xff
)

// ScanFilter accepts advertisements matching any of its manufacturer ids or service UUIDs. An
// empty filter accepts everything.
type ScanFilter struct {
  ManufacturerIDs []uint16
  ServiceUUIDs []UUID
}

func (f ScanFilter) Match(a Advertisement) bool {
  if len(f.ManufacturerIDs) == 0 && len(f.ServiceUUIDs) == 0 {
    return true
  }

  if md := a.ManufacturerData(); len(md) >= 2 {
    id := binary.LittleEndian.Uint16(md)

    for _, want := range f.ManufacturerIDs {
      if id == want {
        return true
      }
    }
  }

  for _, want := range f.ServiceUUIDs {
    for _, uuid := range a.Services() {
      if SameUUID(uuid, want) {
        return true
      }
    }

    for _, sd := range a.ServiceData() {
      if SameUUID(sd.UUID, want) {
        return true
      }
    }
  }

  return false
}

// ScanResult is an advertisement as handed to the decoding layer: the address, signal strength,
// local name (empty when absent) and the advertisement data as AD structures.
type ScanResult struct {
  Addr string
  RSSI int
  LocalName string
  Data []byte
}

func NewScanResult(a Advertisement) ScanResult {
  return ScanResult{
    Addr: strings.ToLower(a.Addr().String()),
    RSSI: a.RSSI(),
    LocalName: a.LocalName(),
    Data: RawAdvertisement(a),
  }
}

// RawAdvertisement rebuilds the AD structures go-ble already split into fields, so that decoders
// can work on the payload as it was transmitted.
func RawAdvertisement(a Advertisement) (raw []byte) {
  if name := a.LocalName(); name != "" {
    raw = appendADStructure(raw, adTypeCompleteName, []byte(name))
  }

  if md := a.ManufacturerData(); len(md) > 0 {
    raw = appendADStructure(raw, adTypeManufacturerData, md)
  }

  for _, sd := range a.ServiceData() {
    if len(sd.UUID) != 2 {
      continue
    }

    payload := append(append([]byte{}, sd.UUID...), sd.Data...)
    raw = appendADStructure(raw, adTypeServiceData16, payload)
  }

  return raw
}

func appendADStructure(raw []byte, adType byte, payload []byte) []byte {
  if len(payload) > 0xfe {
    payload = payload[:0xfe]
  }

  raw = append(raw, byte(len(payload) + 1), adType)
  return append(raw, payload...)
}

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// Scan reports every advertisement accepted by filter until ctx is done. Duplicates are not
// filtered by the controller: every report is delivered as soon as it is received.
func (h *Handle) Scan(ctx context.Context, filter ScanFilter, onResult func(ScanResult)) error {
  if err := h.Available(); err != nil {
    return err
  }

  err := h.dev.Scan(ctx, true, func(a ble.Advertisement) {
    // the BLE lib could send an advertisement even after `Scan()` returns.
    if ctx.Err() != nil || !filter.Match(a) {
      return
    }

    advertisementsCounter.Inc()

    log.Trace().
      Str("Addr", a.Addr().String()).
      Str("LocalName", a.LocalName()).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("ble: received advertisement")

    onResult(NewScanResult(a))
  })

  // swallow context errors which are caused by our explicit cancellations.
  if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
    err = nil
  }

  if err != nil {
    return fmt.Errorf("failed to scan: %w", err)
  }

  return nil
}
