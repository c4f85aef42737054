package sink

import (
  "context"
  "encoding/json"
  "fmt"
  "time"

  "github.com/nats-io/nats.go"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/rs/zerolog/log"
)

type NATSOptions struct {
  URL string
  SubjectPrefix string
  ReconnectWait time.Duration
  MaxReconnects int
}

type NATS struct {
  nc *nats.Conn
  opts NATSOptions
}

func NewNATS(opts NATSOptions) (*NATS, error) {
  if opts.ReconnectWait <= 0 {
    opts.ReconnectWait = 2 * time.Second
  }

  if opts.MaxReconnects == 0 {
    opts.MaxReconnects = -1
  }

  nc, err := nats.Connect(opts.URL,
    nats.Name("ruuvi-station"),
    nats.ReconnectWait(opts.ReconnectWait),
    nats.MaxReconnects(opts.MaxReconnects),
    nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
      log.Warn().Err(err).Str("URL", opts.URL).Msg("sink: nats disconnected")
    }),
    nats.ReconnectHandler(func(nc *nats.Conn) {
      log.Info().Str("URL", nc.ConnectedUrl()).Msg("sink: nats reconnected")
    }),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to connect to nats at %s: %w", opts.URL, err)
  }

  return &NATS{nc: nc, opts: opts}, nil
}

func (n *NATS) PublishMeasurement(ctx context.Context, name string, m device.Measurement) error {
  return n.publish(ctx, topic(n.opts.SubjectPrefix, ".", name, "measurement"),
    NewMeasurementPayload(name, m, time.Now()))
}

func (n *NATS) PublishLogs(ctx context.Context, name string, readings []device.LogReading) error {
  return n.publish(ctx, topic(n.opts.SubjectPrefix, ".", name, "logs"), NewLogsPayload(name, readings))
}

func (n *NATS) publish(ctx context.Context, subject string, payload any) error {
  if err := ctx.Err(); err != nil {
    return err
  }

  data, err := json.Marshal(payload)

  if err != nil {
    return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
  }

  if err := n.nc.Publish(subject, data); err != nil {
    return fmt.Errorf("failed to publish to %s: %w", subject, err)
  }

  log.Trace().Str("Subject", subject).Msg("sink: published to nats")

  return nil
}

func (n *NATS) Close() error {
  return n.nc.Drain()
}
