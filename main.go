package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-ruuvi-station/ble"
	"github.com/robertof/go-ruuvi-station/collector"
	"github.com/robertof/go-ruuvi-station/gatt"
	"github.com/robertof/go-ruuvi-station/httpapi"
	"github.com/robertof/go-ruuvi-station/metrics"
	"github.com/robertof/go-ruuvi-station/scanner"
	"github.com/robertof/go-ruuvi-station/sink"
	"github.com/robertof/go-ruuvi-station/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverTags {
    doTagDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Tags", utils.ToZeroLogArray(cfg.Tags)).
    Int("BluetoothDeviceID", cfg.BluetoothDeviceId).
    Msg("Starting with the specified configuration")

  ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

  bleHandle := initBle(cfg)
  defer bleHandle.Stop()

  registry := prometheus.NewRegistry()
  registry.MustRegister(
    collectors.NewGoCollector(),
    collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
  )

  ble.RegisterMetrics(registry)
  scanner.RegisterMetrics(registry)
  gatt.RegisterMetrics(registry)
  collector.RegisterMetrics(registry)

  var forwarder *collector.Forwarder

  if s := initSinks(ctx, cfg); s != nil {
    forwarder = collector.NewForwarder(s)
  }

  devices := scanner.NewRegistry(scanner.DefaultMaxDevices)
  sessions := gatt.NewManager(ctx, bleHandle, devices, cfg.SessionOptions())
  defer sessions.Shutdown()

  store := collector.NewStore(cfg.Tags, forwarder)
  scan := scanner.New(bleHandle, devices, sessions)

  coll := collector.NewRecurring(scan, store, sessions, cfg.Tags, forwarder)
  coll.Interval = cfg.ScanInterval
  coll.Window = cfg.ScanWindow
  coll.LogSyncInterval = cfg.LogSyncInterval
  coll.IdleTimeout = cfg.IdleTimeout

  metrics.RegisterCollector(store.Latest, registry)

  server := httpapi.NewServer(store, sessions, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  g, ctx := errgroup.WithContext(ctx)

  g.Go(func() error {
    coll.Start(ctx, cfg.CollectionOptions())
    scan.Stop()
    return nil
  })

  if forwarder != nil {
    g.Go(func() error {
      return forwarder.Run(ctx)
    })
  }

  g.Go(func() error {
    err := server.ListenAndServe(cfg.BindAddress)

    if errors.Is(err, http.ErrServerClosed) {
      return nil
    }

    return err
  })

  g.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    return server.Shutdown(shutdownCtx)
  })

  if err := g.Wait(); err != nil && !utils.ErrorIsAnyOf(err, context.Canceled) {
    log.Fatal().Err(err).Msg("Station stopped unexpectedly")
  }

  log.Info().Msg("Station stopped")
}

func initBle(cfg config) *ble.Handle {
  var bleFlags ble.Flags = ble.FlagScanTypeActive

  if cfg.AllowList {
    bleFlags |= ble.FlagEnableDeviceAllowList
  }

  bleHandle, err := ble.InitWithConnParams(cfg.BluetoothDeviceId, cfg.BluetoothConnParams, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  if !cfg.AllowList {
    return bleHandle
  }

  tagAddresses := make([]net.HardwareAddr, len(cfg.Tags))

  for i, tag := range cfg.Tags {
    tagAddresses[i] = tag.Addr()
  }

  if err := bleHandle.SetAllowListedAddresses(tagAddresses); err != nil {
    log.Error().Err(err).Msg("Failed to set tag allow list")
  }

  return bleHandle
}

// initSinks connects to the configured brokers. A broker that can't be reached on start is logged
// and skipped; the station keeps serving the HTTP API.
func initSinks(ctx context.Context, cfg config) sink.Sink {
  var sinks sink.Multi

  if cfg.MQTTBroker != "" {
    m := sink.NewMQTT(sink.MQTTOptions{
      Broker: cfg.MQTTBroker,
      ClientID: "ruuvi-station-" + uuid.NewString()[:8],
      TopicPrefix: cfg.MQTTTopicPrefix,
    })

    if err := m.Connect(ctx); err != nil {
      log.Error().Err(err).Str("Broker", cfg.MQTTBroker).Msg("Failed to connect to the MQTT broker")
    } else {
      sinks = append(sinks, m)
    }
  }

  if cfg.NATSURL != "" {
    n, err := sink.NewNATS(sink.NATSOptions{
      URL: cfg.NATSURL,
      SubjectPrefix: cfg.NATSSubjectPrefix,
    })

    if err != nil {
      log.Error().Err(err).Str("URL", cfg.NATSURL).Msg("Failed to connect to NATS")
    } else {
      sinks = append(sinks, n)
    }
  }

  if len(sinks) == 0 {
    return nil
  }

  return sinks
}
