package collector

import (
  "context"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/gatt"
  "github.com/robertof/go-ruuvi-station/scanner"
  "github.com/rs/zerolog/log"
)

const (
  DefaultMaxRetries = 2
  DefaultBackoffFactor = 500 * time.Millisecond
)

type CollectionOptions struct {
  MaxRetries int
  BackoffFactor time.Duration
}

// Scanner runs scans in the background. *scanner.Scanner implements it.
type Scanner interface {
  Start(ctx context.Context, listener scanner.Listener) error
  Stop()
  Scanning() bool
}

// LogReader starts log downloads. *gatt.Manager implements it.
type LogReader interface {
  ReadLogs(addr string, from time.Time, listener gatt.Listener) bool
}

// retry calls f until it succeeds or MaxRetries retries were made, backing off exponentially
// between attempts.
func (o CollectionOptions) retry(ctx context.Context, what string, f func() error) error {
  for attempt := 0; ; attempt++ {
    err := f()

    if err == nil || attempt >= o.MaxRetries {
      return err
    }

    backoff := o.BackoffFactor << int64(attempt)

    if backoff <= 0 {
      backoff = DefaultBackoffFactor
    }

    log.Debug().
      Err(err).
      Str("What", what).
      Int("RetriesLeft", o.MaxRetries - attempt).
      Dur("Backoff", backoff).
      Msg("collector: failed, will retry")

    select {
    case <-ctx.Done():
      log.Trace().Err(ctx.Err()).Msg("collector: retry aborted by context cancel")
      return ctx.Err()
    case <-time.After(backoff):
    }
  }
}

func tagNames(tags []*device.Tag) map[string]string {
  names := make(map[string]string, len(tags))

  for _, tag := range tags {
    names[tag.Key()] = tag.Name()
  }

  return names
}
