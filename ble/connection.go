package ble

import (
  "context"
  "fmt"
  "strings"
  "sync"

  "github.com/go-ble/ble"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
)

var (
  successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_ble_successful_connections_total",
  })
  failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_ble_failed_connections_total",
  })
  disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_ble_disconnections_total",
  })
  advertisementsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_ble_advertisements_total",
  })
)

// Service is a discovered GATT service with the UUIDs of its characteristics.
type Service struct {
  UUID UUID
  Characteristics []UUID
}

func (s Service) HasCharacteristic(uuid UUID) bool {
  for _, c := range s.Characteristics {
    if SameUUID(c, uuid) {
      return true
    }
  }

  return false
}

// Conn is an established link with a peripheral.
type Conn interface {
  Addr() string
  DiscoverServices(ctx context.Context) ([]Service, error)
  ReadCharacteristic(ctx context.Context, uuid UUID) ([]byte, error)
  WriteCharacteristic(ctx context.Context, uuid UUID, value []byte) error
  EnableNotifications(ctx context.Context, uuid UUID, onValue func([]byte)) error
  // Disconnect tears down the link. It is safe to call more than once.
  Disconnect()
  // Disconnected is closed once the link is gone, whoever closed it.
  Disconnected() <-chan struct{}
}

type connection struct {
  addr string
  client ble.Client

  mu sync.Mutex
  profile *ble.Profile

  disconnectOnce sync.Once
}

func (h *Handle) Connect(ctx context.Context, addr string) (Conn, error) {
  if err := h.Available(); err != nil {
    return nil, err
  }

  addr = strings.ToLower(addr)
  client, err := h.dev.Dial(ctx, ble.NewAddr(addr))

  if err != nil {
    failedConnectionsCounter.Inc()
    return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
  }

  successfulConnectionsCounter.Inc()
  log.Debug().Str("Addr", addr).Msg("ble: successfully opened new connection to device")

  // spawn a watchdog logging when the connection breaks.
  go func() {
    <-client.Disconnected()

    disconnectsCounter.Inc()
    log.Debug().Str("Addr", addr).Msg("ble: connection with device closed")
  }()

  return &connection{addr: addr, client: client}, nil
}

func (c *connection) Addr() string {
  return c.addr
}

func (c *connection) DiscoverServices(ctx context.Context) ([]Service, error) {
  var profile *ble.Profile

  err := withContext(ctx, func() (err error) {
    profile, err = c.client.DiscoverProfile(true)
    return err
  })

  if err != nil {
    return nil, fmt.Errorf("failed to discover profile: %w", err)
  }

  c.mu.Lock()
  c.profile = profile
  c.mu.Unlock()

  services := make([]Service, 0, len(profile.Services))

  for _, s := range profile.Services {
    svc := Service{UUID: s.UUID}

    for _, char := range s.Characteristics {
      svc.Characteristics = append(svc.Characteristics, char.UUID)
    }

    services = append(services, svc)
  }

  return services, nil
}

func (c *connection) characteristic(uuid UUID) (*ble.Characteristic, error) {
  c.mu.Lock()
  defer c.mu.Unlock()

  if c.profile == nil {
    return nil, fmt.Errorf("characteristic %s: services not discovered yet", uuid)
  }

  for _, s := range c.profile.Services {
    for _, char := range s.Characteristics {
      if SameUUID(char.UUID, uuid) {
        return char, nil
      }
    }
  }

  return nil, fmt.Errorf("characteristic %s not found", uuid)
}

func (c *connection) ReadCharacteristic(ctx context.Context, uuid UUID) (value []byte, err error) {
  char, err := c.characteristic(uuid)

  if err != nil {
    return nil, err
  }

  err = withContext(ctx, func() (err error) {
    value, err = c.client.ReadCharacteristic(char)
    return err
  })

  return value, err
}

func (c *connection) WriteCharacteristic(ctx context.Context, uuid UUID, value []byte) error {
  char, err := c.characteristic(uuid)

  if err != nil {
    return err
  }

  return withContext(ctx, func() error {
    return c.client.WriteCharacteristic(char, value, false)
  })
}

func (c *connection) EnableNotifications(ctx context.Context, uuid UUID, onValue func([]byte)) error {
  char, err := c.characteristic(uuid)

  if err != nil {
    return err
  }

  return withContext(ctx, func() error {
    return c.client.Subscribe(char, false, func(req []byte) {
      // go-ble reuses the buffer.
      onValue(append([]byte{}, req...))
    })
  })
}

func (c *connection) Disconnect() {
  c.disconnectOnce.Do(func() {
    if err := c.client.CancelConnection(); err != nil {
      log.Debug().Err(err).Str("Addr", c.addr).Msg("ble: failed to cancel connection")
    }
  })
}

func (c *connection) Disconnected() <-chan struct{} {
  return c.client.Disconnected()
}

// go-ble calls are blocking and don't take a context: run them aside and give up when ctx is done.
func withContext(ctx context.Context, f func() error) error {
  done := make(chan error, 1)

  go func() {
    done <- f()
  }()

  select {
  case err := <-done:
    return err
  case <-ctx.Done():
    return ctx.Err()
  }
}
