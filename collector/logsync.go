package collector

import (
  "context"
  "sync"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/gatt"
  "github.com/rs/zerolog/log"
)

// logSync keeps track of the history downloads of one tag. Every download starts where the
// previous one ended.
type logSync struct {
  ctx context.Context
  tag *device.Tag
  forwarder *Forwarder

  mu sync.Mutex
  from time.Time
  lastStart time.Time
  inFlight bool
  unsupported bool
}

func newLogSync(ctx context.Context, tag *device.Tag, forwarder *Forwarder) *logSync {
  return &logSync{ctx: ctx, tag: tag, forwarder: forwarder, from: tag.LogsSince}
}

func (ls *logSync) due(now time.Time, interval time.Duration) bool {
  ls.mu.Lock()
  defer ls.mu.Unlock()

  return !ls.inFlight && !ls.unsupported && (ls.lastStart.IsZero() || now.Sub(ls.lastStart) >= interval)
}

func (ls *logSync) start(logs LogReader, now time.Time) bool {
  ls.mu.Lock()
  from := ls.from
  ls.inFlight = true
  ls.lastStart = now
  ls.mu.Unlock()

  log.Debug().Stringer("Tag", ls.tag).Time("From", from).Msg("collector: starting log sync")

  if !logs.ReadLogs(ls.tag.Key(), from, &logSyncListener{ls: ls}) {
    // not seen accepting connections yet, try again on the next tick.
    ls.mu.Lock()
    ls.inFlight = false
    ls.lastStart = time.Time{}
    ls.mu.Unlock()

    return false
  }

  return true
}

func (ls *logSync) From() time.Time {
  ls.mu.Lock()
  defer ls.mu.Unlock()

  return ls.from
}

type logSyncListener struct {
  gatt.NopListener
  ls *logSync
}

func (l *logSyncListener) Connected(connected bool) {
  if connected {
    return
  }

  l.ls.mu.Lock()
  l.ls.inFlight = false
  l.ls.mu.Unlock()
}

func (l *logSyncListener) DeviceInfo(model, firmware string, canReadLogs bool) {
  if canReadLogs {
    return
  }

  log.Warn().
    Stringer("Tag", l.ls.tag).
    Str("Firmware", firmware).
    Msg("collector: tag firmware cannot transfer logs, disabling log sync")

  l.ls.mu.Lock()
  l.ls.unsupported = true
  l.ls.mu.Unlock()
}

func (l *logSyncListener) SyncProgress(count int) {
  log.Trace().Stringer("Tag", l.ls.tag).Int("Points", count).Msg("collector: log sync progress")
}

func (l *logSyncListener) DataReady(readings []device.LogReading) {
  log.Info().Stringer("Tag", l.ls.tag).Int("Points", len(readings)).Msg("collector: log sync complete")

  l.ls.mu.Lock()
  for _, r := range readings {
    if r.Timestamp.After(l.ls.from) {
      l.ls.from = r.Timestamp
    }
  }
  l.ls.mu.Unlock()

  if len(readings) > 0 {
    l.ls.forwarder.Logs(l.ls.ctx, l.ls.tag.Name(), readings)
  }
}
