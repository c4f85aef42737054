package main

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-ruuvi-station/ble"
	"github.com/robertof/go-ruuvi-station/device"
	"github.com/robertof/go-ruuvi-station/device/ruuvi"
	"github.com/robertof/go-ruuvi-station/scanner"
)

const discoveryDuration = 5 * time.Second

type tagInfo struct {
  name string
  connectable bool
  formats map[int]bool
  last device.Measurement
}

// discovered accumulates what the advertisements of a scan tell about every tag in range.
type discovered map[string]*tagInfo

func (d discovered) add(r ble.ScanResult, m device.Measurement) {
  info, ok := d[r.Addr]

  if !ok {
    info = &tagInfo{formats: make(map[int]bool)}
    d[r.Addr] = info
  }

  // the name only comes with scan responses.
  if info.name == "" {
    info.name = r.LocalName
  }

  info.connectable = info.connectable || r.LocalName != ""
  info.formats[m.DataFormat] = true
  info.last = m
}

func (d discovered) addrs() []string {
  addrs := maps.Keys(d)
  sort.Strings(addrs)
  return addrs
}

func doTagDiscovery(cfg config) {
  log.Info().Msg("Starting in tag discovery mode - collecting tags for 5 seconds...")

  handle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, ble.FlagScanTypeActive)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      discoveryDuration,
    ),
  )

  tags := make(discovered)

  err = handle.Scan(ctx, scanner.RuuviFilter(), func(r ble.ScanResult) {
    m, err := ruuvi.Decode(r.Data, r.Addr, r.RSSI)

    if err != nil {
      log.Debug().
        Str("Addr", r.Addr).
        Hex("Data", r.Data).
        Err(err).
        Msg("Ignoring advertisement that can't be decoded")
      return
    }

    tags.add(r, m)

    log.Debug().
      Str("Addr", r.Addr).
      Str("Name", r.LocalName).
      Int("RSSI", r.RSSI).
      Int("DataFormat", m.DataFormat).
      Msg("Received tag advertisement")
  })

  if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(tags)).Msg("Finished tag discovery")

  for _, addr := range tags.addrs() {
    info := tags[addr]
    formats := maps.Keys(info.formats)
    sort.Ints(formats)

    log.Info().
      Str("Addr", addr).
      Str("Name", info.name).
      Bool("Connectable", info.connectable).
      Ints("DataFormats", formats).
      Int("RSSI", info.last.RSSI).
      Str("Spec", "addr=" + addr).
      Msg("Found tag")
  }
}
