package collector

import (
  "context"
  "errors"
  "sync"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/gatt"
  "github.com/robertof/go-ruuvi-station/scanner"
)

var errAdapter = errors.New("adapter busy")

type fakeScanner struct {
  failures int

  mu sync.Mutex
  starts int
  stops int
  scanning bool
  listener scanner.Listener
}

func (s *fakeScanner) Start(ctx context.Context, l scanner.Listener) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.starts++

  if s.starts <= s.failures {
    return errAdapter
  }

  s.scanning = true
  s.listener = l
  return nil
}

func (s *fakeScanner) Stop() {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.scanning {
    s.stops++
  }

  s.scanning = false
}

func (s *fakeScanner) Scanning() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.scanning
}

func (s *fakeScanner) counts() (starts, stops int) {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.starts, s.stops
}

type logRequest struct {
  addr string
  from time.Time
  listener gatt.Listener
}

type fakeLogReader struct {
  known bool

  mu sync.Mutex
  requests []logRequest
}

func (r *fakeLogReader) ReadLogs(addr string, from time.Time, l gatt.Listener) bool {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.requests = append(r.requests, logRequest{addr, from, l})
  return r.known
}

func (r *fakeLogReader) get() []logRequest {
  r.mu.Lock()
  defer r.mu.Unlock()

  return append([]logRequest{}, r.requests...)
}

type recordingSink struct {
  mu sync.Mutex
  measurements []string
  logs [][]device.LogReading
  closed bool
}

func (s *recordingSink) PublishMeasurement(_ context.Context, name string, _ device.Measurement) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.measurements = append(s.measurements, name)
  return nil
}

func (s *recordingSink) PublishLogs(_ context.Context, _ string, readings []device.LogReading) error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.logs = append(s.logs, readings)
  return nil
}

func (s *recordingSink) Close() error {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.closed = true
  return nil
}

func (s *recordingSink) snapshot() (measurements []string, logs int, closed bool) {
  s.mu.Lock()
  defer s.mu.Unlock()

  return append([]string{}, s.measurements...), len(s.logs), s.closed
}
