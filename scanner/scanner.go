package scanner

import (
  "context"
  "errors"
  "sync"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ruuvi-station/ble"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/device/ruuvi"
  "github.com/robertof/go-ruuvi-station/utils"
  "github.com/rs/zerolog/log"
)

// Eddystone service, advertised by tags running Eddystone firmware.
var EddystoneUUID = ble.MustParse("0000feaa-0000-1000-8000-00805f9b34fb")

var (
  decodeFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_scanner_decode_failures_total",
  })
  deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_scanner_delivered_measurements_total",
  })
  suppressedCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_scanner_suppressed_measurements_total",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(decodeFailuresCounter, deliveredCounter, suppressedCounter)
}

type Listener interface {
  OnTagFound(m device.Measurement)
}

type ListenerFunc func(m device.Measurement)

func (f ListenerFunc) OnTagFound(m device.Measurement) {
  f(m)
}

// Adapter is the part of the radio the scanner needs. *ble.Handle implements it.
type Adapter interface {
  Available() error
  Scan(ctx context.Context, filter ble.ScanFilter, onResult func(ble.ScanResult)) error
}

// ConnectionChecker tells whether a session with a device is currently connected.
type ConnectionChecker interface {
  IsConnected(addr string) bool
}

type Scanner struct {
  adapter Adapter
  registry *Registry
  sessions ConnectionChecker

  mu sync.Mutex
  cancel context.CancelFunc
  done chan struct{}
}

// New returns a scanner feeding registry. sessions may be nil when no GATT sessions are used.
func New(adapter Adapter, registry *Registry, sessions ConnectionChecker) *Scanner {
  return &Scanner{
    adapter: adapter,
    registry: registry,
    sessions: sessions,
  }
}

// RuuviFilter matches the advertisements of RuuviTags: Ruuvi manufacturer data or Eddystone
// service data.
func RuuviFilter() ble.ScanFilter {
  return ble.ScanFilter{
    ManufacturerIDs: []uint16{ruuvi.ManufacturerID},
    ServiceUUIDs: []ble.UUID{EddystoneUUID},
  }
}

// Start begins scanning in the background, reporting every new measurement to listener until
// Stop is called or ctx is done. It does nothing when a scan is already running, and returns an
// error without scanning when the adapter is unavailable.
func (s *Scanner) Start(ctx context.Context, listener Listener) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.done != nil {
    log.Trace().Msg("scanner: already scanning")
    return nil
  }

  if err := s.adapter.Available(); err != nil {
    log.Warn().Err(err).Msg("scanner: not starting scan")
    return err
  }

  ctx, cancel := context.WithCancel(ctx)
  done := make(chan struct{})
  s.cancel, s.done = cancel, done

  go func() {
    defer close(done)
    defer s.finished(done)

    log.Debug().Msg("scanner: scan started")

    err := s.adapter.Scan(ctx, RuuviFilter(), func(r ble.ScanResult) {
      s.handle(r, listener)
    })

    if err != nil && !utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
      log.Error().Err(err).Msg("scanner: scan failed")
      return
    }

    log.Debug().Msg("scanner: scan stopped")
  }()

  return nil
}

func (s *Scanner) finished(done chan struct{}) {
  s.mu.Lock()
  defer s.mu.Unlock()

  // a new scan could have been started in the meantime.
  if s.done == done {
    s.cancel()
    s.cancel, s.done = nil, nil
  }
}

// Stop ends the running scan and waits for it to wind down. It does nothing when not scanning.
func (s *Scanner) Stop() {
  s.mu.Lock()
  cancel, done := s.cancel, s.done
  s.mu.Unlock()

  if done == nil {
    return
  }

  cancel()
  <-done
}

func (s *Scanner) Scanning() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.done != nil
}

func (s *Scanner) handle(r ble.ScanResult, listener Listener) {
  m, err := ruuvi.Decode(r.Data, r.Addr, r.RSSI)

  if err != nil {
    decodeFailuresCounter.Inc()

    if !errors.Is(err, device.ErrInvalidData) && !errors.Is(err, device.ErrUnknownFormat) {
      log.Warn().Err(err).Str("Addr", r.Addr).Msg("scanner: unexpected decode failure")
    } else {
      log.Trace().Err(err).Str("Addr", r.Addr).Hex("Data", r.Data).Msg("scanner: dropping advertisement")
    }

    return
  }

  sessionConnected := s.sessions != nil && s.sessions.IsConnected(m.Addr)
  m.Connectable = s.registry.IsConnectable(m, r.LocalName != "", sessionConnected)

  if m.Connectable {
    s.registry.Remember(m)
  }

  if s.registry.Observe(m) == Suppress {
    suppressedCounter.Inc()
    return
  }

  deliveredCounter.Inc()
  log.Trace().Stringer("Measurement", m).Msg("scanner: tag found")

  utils.RecoverToLog(func() {
    listener.OnTagFound(m)
  }, log.Logger, "scanner: listener panicked")
}
