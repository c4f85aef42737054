package collector

import (
  "context"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/rs/zerolog/log"
)

// Recurring decides when to scan and when to download logs. Every tick opens a scan window and
// starts the log syncs that are due.
type Recurring struct {
  // Time between two ticks.
  Interval time.Duration
  // How long the scanner listens on every tick. A window as long as the interval (or zero) keeps
  // the scanner running all the time.
  Window time.Duration
  // Time between two log downloads of the same tag.
  LogSyncInterval time.Duration
  // If Latest() wasn't called on the store for more than IdleTimeout, scanning is suspended until
  // it is called again. Zero disables suspension.
  IdleTimeout time.Duration

  scanner Scanner
  store *Store
  logs LogReader
  tags []*device.Tag
  forwarder *Forwarder

  syncs []*logSync
  initialized bool
  started bool
  now func() time.Time
}

// NewRecurring returns a scheduler for scanner and logs. logs may be nil when no tag is configured
// for log download.
func NewRecurring(
  s Scanner,
  store *Store,
  logs LogReader,
  tags []*device.Tag,
  forwarder *Forwarder,
) *Recurring {
  return &Recurring{
    Interval: time.Minute,
    LogSyncInterval: time.Hour,
    scanner: s,
    store: store,
    logs: logs,
    tags: tags,
    forwarder: forwarder,
    now: time.Now,
  }
}

func (r *Recurring) continuous() bool {
  return r.Window <= 0 || r.Window >= r.Interval
}

func (r *Recurring) initLogSyncs(ctx context.Context) {
  if r.initialized || r.logs == nil {
    return
  }

  r.initialized = true

  for _, tag := range r.tags {
    if tag.ReadLogs {
      r.syncs = append(r.syncs, newLogSync(ctx, tag, r.forwarder))
    }
  }
}

// Tick runs one scheduling round: a scan window (or making sure the continuous scan is running),
// then the due log syncs.
func (r *Recurring) Tick(ctx context.Context, opts CollectionOptions) error {
  r.initLogSyncs(ctx)

  err := opts.retry(ctx, "scan", func() error {
    return r.scanner.Start(ctx, r.store)
  })

  if err != nil {
    return err
  }

  if !r.continuous() {
    select {
    case <-ctx.Done():
    case <-time.After(r.Window):
    }

    r.scanner.Stop()
  }

  r.syncLogs()

  return ctx.Err()
}

func (r *Recurring) syncLogs() {
  now := r.now()

  for _, ls := range r.syncs {
    if ls.due(now, r.LogSyncInterval) {
      if !ls.start(r.logs, now) {
        log.Debug().Stringer("Tag", ls.tag).Msg("collector: tag not connectable yet, log sync postponed")
      }
    }
  }
}

func (r *Recurring) shouldSuspend() (bool, time.Duration) {
  if r.IdleTimeout == 0 {
    return false, 0
  }

  elapsed := r.store.sinceLastRead()

  return elapsed > r.IdleTimeout, elapsed
}

// Start runs ticks every Interval until ctx is done.
func (r *Recurring) Start(ctx context.Context, opts CollectionOptions) {
  if r.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  r.started = true
  r.initLogSyncs(ctx)

  log.Info().
    Dur("Interval", r.Interval).
    Dur("Window", r.Window).
    Bool("Continuous", r.continuous()).
    Dur("LogSyncInterval", r.LogSyncInterval).
    Int("LogSyncTags", len(r.syncs)).
    Int("MaxRetries", opts.MaxRetries).
    Dur("IdleTimeout", r.IdleTimeout).
    Msg("Starting recurring collector")

  defer r.scanner.Stop()

  for {
    if suspend, elapsed := r.shouldSuspend(); suspend {
      log.Warn().
        Dur("IdleTimeout", r.IdleTimeout).
        Dur("TimeSinceLastRead", elapsed).
        Msg("Suspending recurring collector due to inactivity")

      r.scanner.Stop()

      // forget reads that happened before suspending.
      select {
      case <-r.store.woken():
      default:
      }

      select {
      case <-ctx.Done():
        log.Info().Msg("Recurring collector is shutting down")
        return
      case <-r.store.woken():
        log.Debug().Msg("Collector woke up from sleep - starting immediate collection")
      }
    }

    if err := r.Tick(ctx, opts); err != nil && ctx.Err() == nil {
      log.Error().Err(err).Msg("Scheduling round failed")
    }

    wait := r.Interval
    if !r.continuous() {
      wait -= r.Window
    }

    select {
    case <-ctx.Done():
      log.Info().Msg("Recurring collector is shutting down")
      return
    case <-time.After(wait):
    }
  }
}
