package gatt

import "time"

type Options struct {
  // MaxRetries is the number of connection attempts before giving up.
  MaxRetries int
  // RetryBackoff is doubled after every failed attempt.
  RetryBackoff time.Duration
  ConnectTimeout time.Duration
  // IdleTimeout aborts a log transfer when the tag stops sending frames.
  IdleTimeout time.Duration
  // SettleDelay is how long a session keeps reporting itself connected after disconnecting, while
  // the tag releases the link.
  SettleDelay time.Duration
  // CommandOnHeartbeat delays the read command until the first heartbeat is received.
  CommandOnHeartbeat bool

  Now func() time.Time
}

func DefaultOptions() Options {
  return Options{
    MaxRetries: 3,
    RetryBackoff: 500 * time.Millisecond,
    ConnectTimeout: 15 * time.Second,
    IdleTimeout: 30 * time.Second,
    SettleDelay: 1500 * time.Millisecond,
    Now: time.Now,
  }
}

func (o Options) withDefaults() Options {
  d := DefaultOptions()

  if o.MaxRetries <= 0 {
    o.MaxRetries = d.MaxRetries
  }

  if o.RetryBackoff <= 0 {
    o.RetryBackoff = d.RetryBackoff
  }

  if o.ConnectTimeout <= 0 {
    o.ConnectTimeout = d.ConnectTimeout
  }

  if o.IdleTimeout <= 0 {
    o.IdleTimeout = d.IdleTimeout
  }

  if o.SettleDelay <= 0 {
    o.SettleDelay = d.SettleDelay
  }

  if o.Now == nil {
    o.Now = d.Now
  }

  return o
}
