package collector

import (
  "context"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/sink"
  "github.com/rs/zerolog/log"
)

const (
  forwarderQueueSize = 256
  publishTimeout = 10 * time.Second
)

var droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
  Name: "ruuvi_station_forwarder_dropped_total",
})

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(droppedCounter)
}

type publication struct {
  name string
  measurement *device.Measurement
  logs []device.LogReading
}

// Forwarder hands measurements and log batches over to a sink without blocking the caller. When
// the sink falls behind, new measurements are dropped; log batches never are.
type Forwarder struct {
  sink sink.Sink
  queue chan publication
}

func NewForwarder(s sink.Sink) *Forwarder {
  return &Forwarder{
    sink: s,
    queue: make(chan publication, forwarderQueueSize),
  }
}

func (f *Forwarder) Measurement(name string, m device.Measurement) {
  if f == nil {
    return
  }

  select {
  case f.queue <- publication{name: name, measurement: &m}:
  default:
    droppedCounter.Inc()
    log.Warn().Str("Name", name).Msg("collector: sink is too slow, dropping measurement")
  }
}

func (f *Forwarder) Logs(ctx context.Context, name string, readings []device.LogReading) {
  if f == nil {
    return
  }

  select {
  case f.queue <- publication{name: name, logs: readings}:
  case <-ctx.Done():
  }
}

// Run publishes queued items until ctx is done, then closes the sink.
func (f *Forwarder) Run(ctx context.Context) error {
  defer func() {
    if err := f.sink.Close(); err != nil {
      log.Warn().Err(err).Msg("collector: failed to close sink")
    }
  }()

  for {
    select {
    case <-ctx.Done():
      return nil
    case p := <-f.queue:
      f.publish(ctx, p)
    }
  }
}

func (f *Forwarder) publish(ctx context.Context, p publication) {
  ctx, cancel := context.WithTimeout(ctx, publishTimeout)
  defer cancel()

  var err error

  if p.measurement != nil {
    err = f.sink.PublishMeasurement(ctx, p.name, *p.measurement)
  } else {
    err = f.sink.PublishLogs(ctx, p.name, p.logs)
  }

  if err != nil {
    log.Warn().Err(err).Str("Name", p.name).Msg("collector: failed to publish")
  }
}
