package gatt

import (
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/utils"
  "github.com/rs/zerolog"
)

// Listener receives the events of a session. Methods are called from the session goroutine, one at
// a time.
type Listener interface {
  Connected(connected bool)
  DeviceInfo(model, firmware string, canReadLogs bool)
  Heartbeat(raw string)
  SyncProgress(count int)
  DataReady(readings []device.LogReading)
}

// NopListener ignores every event. Embed it to implement only some of the methods.
type NopListener struct{}

func (NopListener) Connected(bool) {}
func (NopListener) DeviceInfo(string, string, bool) {}
func (NopListener) Heartbeat(string) {}
func (NopListener) SyncProgress(int) {}
func (NopListener) DataReady([]device.LogReading) {}

// safeListener keeps a panicking listener from taking the session down with it.
type safeListener struct {
  l Listener
  log zerolog.Logger
}

func (s safeListener) call(event string, f func(l Listener)) {
  if s.l == nil {
    return
  }

  utils.RecoverToLog(func() { f(s.l) }, s.log.With().Str("Event", event).Logger(),
    "gatt: listener panicked")
}

func (s safeListener) Connected(connected bool) {
  s.call("connected", func(l Listener) { l.Connected(connected) })
}

func (s safeListener) DeviceInfo(model, firmware string, canReadLogs bool) {
  s.call("device info", func(l Listener) { l.DeviceInfo(model, firmware, canReadLogs) })
}

func (s safeListener) Heartbeat(raw string) {
  s.call("heartbeat", func(l Listener) { l.Heartbeat(raw) })
}

func (s safeListener) SyncProgress(count int) {
  s.call("sync progress", func(l Listener) { l.SyncProgress(count) })
}

func (s safeListener) DataReady(readings []device.LogReading) {
  s.call("data ready", func(l Listener) { l.DataReady(readings) })
}
