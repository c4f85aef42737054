package ble

import (
  "bytes"
  "errors"
  "fmt"
  "net"
  "sync/atomic"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ruuvi-station/utils"
  "github.com/rs/zerolog/log"
)

var ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

type Advertisement = ble.Advertisement
type UUID = ble.UUID

func UUID16(i uint16) UUID {
  return ble.UUID16(i)
}

func MustParse(s string) UUID {
  return ble.MustParse(s)
}

// SameUUID compares UUIDs, treating a 16-bit UUID as an alias of its 128-bit form.
func SameUUID(a, b UUID) bool {
  return bytes.Equal(expandUUID(a), expandUUID(b))
}

func expandUUID(u UUID) UUID {
  if len(u) != 2 {
    return u
  }

  return ble.MustParse("0000" + u.String() + "-0000-1000-8000-00805f9b34fb")
}

type Handle struct {
  dev *linux.Device
  stopped atomic.Bool
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    disconnectsCounter,
    advertisementsCounter,
  )
}

func Init(deviceId int, flags Flags) (*Handle, error) {
  return InitWithConnParams(
    deviceId,
    ConnParamsDefault,
    flags,
  )
}

func InitWithConnParams(deviceId int, connParams ConnParams, flags Flags) (*Handle, error) {
  var scanType scanType = scanTypePassive
  var filterPolicy filterPolicy = filterPolicyAcceptAll

  if flags & FlagScanTypeActive == FlagScanTypeActive {
    scanType = scanTypeActive
  }

  if flags & FlagEnableDeviceAllowList == FlagEnableDeviceAllowList {
    filterPolicy = filterPolicyAllowListedOnly
  }

  log.Debug().
    Stringer("ScanType", scanType).
    Stringer("FilterPolicy", filterPolicy).
    Stringer("ConnParams", &connParams).
    Stringer("Flags", flags).
    Int("DeviceID", deviceId).
    Msg("Initializing Bluetooth device")

  // scan interval == scan window: the radio listens all the time, which is the lowest latency
  // setting the controller offers.
  dev, err := linux.NewDevice(
    ble.OptDeviceID(deviceId),
    ble.OptScanParams(cmd.LESetScanParameters{
      LEScanType:           uint8(scanType),     // 0x00: passive, 0x01: active
      LEScanInterval:       0x0004,              // 0x0004 - 0x4000; N * 0.625msec
      LEScanWindow:         0x0004,              // 0x0004 - 0x4000; N * 0.625msec
      OwnAddressType:       0x00,                // 0x00: public, 0x01: random
      ScanningFilterPolicy: uint8(filterPolicy), // 0x00: accept all, 0x01: ignore non-allow-listed.
    }),
    ble.OptConnParams(connParams.AdapterOptions()),
  )

  if err != nil {
    return nil, adapterError(err)
  }

  ble.SetDefaultDevice(dev)

  return &Handle{dev: dev}, nil
}

// adapterError keeps both ErrAdapterUnavailable and the cause reported by the radio stack
// matchable with errors.Is.
func adapterError(err error) error {
  return fmt.Errorf("%w: failed to init bluetooth device: %w", ErrAdapterUnavailable, err)
}

// Available reports whether the adapter can currently be used for scans and connections.
func (h *Handle) Available() error {
  if h == nil || h.dev == nil || h.stopped.Load() {
    return ErrAdapterUnavailable
  }

  return nil
}

func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
  log.Debug().
    Array("DeviceAddresses", utils.ToZeroLogArray(a)).
    Msg("Allow-listing the requested Bluetooth devices")

  // clear the white list to make sure we're starting from an empty slate.
  var res cmd.LEClearWhiteListRP

  err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res)

  if err != nil {
    return fmt.Errorf("failed to clear allow-list: %w", err)
  }

  if res.Status != 0 {
    return fmt.Errorf("failed to clear allow-list: got status: %v", res.Status)
  }

  for _, addr := range a {
    bytes := []byte(addr)

    if len(bytes) != 6 {
      return fmt.Errorf("invalid device address %q: want 6 bytes, got %d", addr.String(), len(bytes))
    }

    var res cmd.LEAddDeviceToWhiteListRP

    // RuuviTags use a random static address.
    err := h.dev.HCI.Send(&cmd.LEAddDeviceToWhiteList{
      AddressType: 0x01,
      Address:     [6]byte{
        // flip due to endianness
        bytes[5],
        bytes[4],
        bytes[3],
        bytes[2],
        bytes[1],
        bytes[0],
      },
    }, &res)

    if err != nil {
      return fmt.Errorf("failed to allow-list device %q: %w", addr.String(), err)
    }

    if res.Status != 0 {
      return fmt.Errorf("failed to allow-list device %q: got status: %v", addr.String(), res.Status)
    }
  }

  return nil
}

func (h *Handle) Stop() {
  if h.stopped.CompareAndSwap(false, true) {
    h.dev.Stop()
  }
}
