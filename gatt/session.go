package gatt

import (
  "context"
  "encoding/hex"
  "errors"
  "fmt"
  "strings"
  "sync"
  "time"

  "github.com/google/uuid"
  "github.com/robertof/go-ruuvi-station/ble"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

var (
  ErrConnectionFailed = errors.New("connection failed")
  ErrServiceMismatch = errors.New("required service or characteristic missing")
  ErrLinkLost = errors.New("link lost")
  ErrIdleTimeout = errors.New("no frame received in time")
)

// Dialer opens links with tags. *ble.Handle implements it.
type Dialer interface {
  Connect(ctx context.Context, addr string) (ble.Conn, error)
}

// Identity is what the device information service reports about a tag.
type Identity struct {
  Manufacturer string
  Model string
  Firmware string
  CanReadLogs bool
}

// Session drives the connection with one tag. It runs one request at a time: starting a new one
// resets whatever was running.
type Session struct {
  addr string
  dialer Dialer
  opts Options

  mu sync.Mutex
  state State
  current *run
  connected bool
  settleGen uint64
  identity Identity
  err error
}

// run is one request, from connection to disconnection.
type run struct {
  id string
  action Action
  from time.Time
  listener safeListener
  log zerolog.Logger

  ctx context.Context
  cancel context.CancelFunc
  done chan struct{}

  retries int
  frames *frameQueue
  batch *logBatch
  commandSent bool
  disconnected sync.Once
}

func NewSession(addr string, dialer Dialer, opts Options) *Session {
  return &Session{
    addr: addr,
    dialer: dialer,
    opts: opts.withDefaults(),
  }
}

func (s *Session) Addr() string {
  return s.addr
}

// Start resets the session and runs action in the background. from bounds the logs to fetch, a
// zero value fetches the whole history.
func (s *Session) Start(ctx context.Context, action Action, from time.Time, listener Listener) {
  id := uuid.NewString()
  logger := log.With().
    Str("Addr", s.addr).
    Str("SessionID", id).
    Stringer("Action", action).
    Logger()

  r := &run{
    id: id,
    action: action,
    from: from,
    listener: safeListener{l: listener, log: logger},
    log: logger,
    done: make(chan struct{}),
    frames: newFrameQueue(),
    batch: newLogBatch(s.addr),
  }
  r.ctx, r.cancel = context.WithCancel(ctx)

  s.mu.Lock()
  prev := s.current
  s.current = r
  s.state = Idle
  s.err = nil
  s.mu.Unlock()

  if prev != nil {
    logger.Debug().Str("PreviousSessionID", prev.id).Msg("gatt: resetting session")
    prev.cancel()
  }

  go s.execute(r, prev)
}

// Disconnect aborts the running request. It reports false when there was nothing to abort.
func (s *Session) Disconnect() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current == nil || s.state.Terminal() || s.current.ctx.Err() != nil {
    return false
  }

  s.current.log.Debug().Stringer("State", s.state).Msg("gatt: disconnect requested")
  s.current.cancel()

  return true
}

// Wait blocks until the current request is over.
func (s *Session) Wait() {
  s.mu.Lock()
  r := s.current
  s.mu.Unlock()

  if r != nil {
    <-r.done
  }
}

func (s *Session) State() State {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.state
}

// IsConnected reports whether the tag is linked to us, including the settle delay after a
// disconnection.
func (s *Session) IsConnected() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.connected
}

// Err returns why the last request failed. It is nil while a request runs and after a success.
func (s *Session) Err() error {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.err
}

func (s *Session) Identity() Identity {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.identity
}

// Events of runs that were replaced are ignored.
func (s *Session) setState(r *run, state State) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current != r {
    return
  }

  s.state = state
  r.log.Trace().Stringer("State", state).Msg("gatt: state changed")
}

func (s *Session) setConnected(r *run) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current != r {
    return
  }

  s.connected = true
  s.settleGen++
}

func (s *Session) setIdentity(r *run, identity Identity) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current == r {
    s.identity = identity
  }
}

func (s *Session) setErr(r *run, err error) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current == r {
    s.err = err
  }
}

func (s *Session) execute(r *run, prev *run) {
  defer close(r.done)

  if prev != nil {
    <-prev.done
  }

  activeSessionsGauge.Inc()
  defer activeSessionsGauge.Dec()

  sessionsStartedCounter.WithLabelValues(r.action.String()).Inc()
  r.log.Debug().Time("From", r.from).Msg("gatt: session started")

  conn, err := s.perform(r)
  s.finish(r, conn, err)
}

func (s *Session) perform(r *run) (conn ble.Conn, err error) {
  conn, err = s.connect(r)

  if err != nil {
    return nil, err
  }

  s.setConnected(r)
  r.log.Info().Int("Retries", r.retries).Msg("gatt: connected")
  r.listener.Connected(true)

  ctx, cancel := context.WithCancelCause(r.ctx)
  defer cancel(nil)

  defer func() {
    if err != nil && ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrLinkLost) {
      err = fmt.Errorf("%w: %w", ErrLinkLost, err)
    }
  }()

  go func() {
    select {
    case <-conn.Disconnected():
      cancel(ErrLinkLost)
    case <-ctx.Done():
    }
  }()

  s.setState(r, DiscoveringServices)

  if err = s.discover(ctx, conn); err != nil {
    return conn, err
  }

  s.setState(r, ReadingIdentity)

  identity, err := s.readIdentity(ctx, r, conn)

  if err != nil {
    return conn, err
  }

  s.setIdentity(r, identity)
  r.listener.DeviceInfo(identity.Model, identity.Firmware, identity.CanReadLogs)

  if r.action == FetchVersion {
    return conn, nil
  }

  if !identity.CanReadLogs {
    r.log.Info().Str("Firmware", identity.Firmware).Msg("gatt: firmware cannot transfer logs")
    return conn, nil
  }

  s.setState(r, Subscribing)

  if err = conn.EnableNotifications(ctx, TransferNotifyUUID, r.frames.push); err != nil {
    return conn, fmt.Errorf("failed to enable notifications: %w", err)
  }

  s.setState(r, ReadingLogs)

  if !s.opts.CommandOnHeartbeat {
    if err = s.sendReadCommand(ctx, r, conn); err != nil {
      return conn, err
    }
  }

  return conn, s.readLogs(ctx, r, conn)
}

func (s *Session) connect(r *run) (ble.Conn, error) {
  for attempt := 0; ; attempt++ {
    if err := r.ctx.Err(); err != nil {
      return nil, err
    }

    s.setState(r, Connecting)
    connectAttemptsCounter.Inc()

    ctx, cancel := context.WithTimeout(r.ctx, s.opts.ConnectTimeout)
    conn, err := s.dialer.Connect(ctx, s.addr)
    cancel()

    if err == nil {
      return conn, nil
    }

    if r.ctx.Err() != nil {
      return nil, r.ctx.Err()
    }

    r.retries++

    r.log.Warn().
      Err(err).
      Int("Attempt", attempt + 1).
      Int("MaxRetries", s.opts.MaxRetries).
      Msg("gatt: failed to connect")

    if r.retries >= s.opts.MaxRetries {
      return nil, fmt.Errorf("%w: giving up after %d attempts: %w", ErrConnectionFailed, r.retries, err)
    }

    backoff := s.opts.RetryBackoff << attempt

    select {
    case <-time.After(backoff):
    case <-r.ctx.Done():
      return nil, r.ctx.Err()
    }
  }
}

func (s *Session) discover(ctx context.Context, conn ble.Conn) error {
  services, err := conn.DiscoverServices(ctx)

  if err != nil {
    return fmt.Errorf("failed to discover services: %w", err)
  }

  return checkServices(services)
}

func checkServices(services []ble.Service) error {
  required := []struct{
    service ble.UUID
    characteristics []ble.UUID
  }{
    {IdentityServiceUUID, []ble.UUID{ManufacturerUUID, ModelUUID, FirmwareUUID}},
    {TransferServiceUUID, []ble.UUID{TransferWriteUUID, TransferNotifyUUID}},
  }

  for _, req := range required {
    var found *ble.Service

    for i := range services {
      if ble.SameUUID(services[i].UUID, req.service) {
        found = &services[i]
        break
      }
    }

    if found == nil {
      return fmt.Errorf("%w: service %s", ErrServiceMismatch, req.service)
    }

    for _, char := range req.characteristics {
      if !found.HasCharacteristic(char) {
        return fmt.Errorf("%w: characteristic %s of service %s", ErrServiceMismatch, char, req.service)
      }
    }
  }

  return nil
}

func (s *Session) readIdentity(ctx context.Context, r *run, conn ble.Conn) (Identity, error) {
  var manufacturer, model, firmware string

  g, ctx := errgroup.WithContext(ctx)

  read := func(uuid ble.UUID, dst *string) {
    g.Go(func() error {
      value, err := conn.ReadCharacteristic(ctx, uuid)

      if err != nil {
        return fmt.Errorf("failed to read characteristic %s: %w", uuid, err)
      }

      *dst = strings.Trim(string(value), "\x00 ")
      return nil
    })
  }

  read(ManufacturerUUID, &manufacturer)
  read(ModelUUID, &model)
  read(FirmwareUUID, &firmware)

  if err := g.Wait(); err != nil {
    return Identity{}, err
  }

  if _, err := ParseFirmware(firmware); err != nil {
    r.log.Warn().Err(err).Msg("gatt: cannot tell firmware version, assuming no log support")
  }

  identity := Identity{
    Manufacturer: manufacturer,
    Model: model,
    Firmware: firmware,
    CanReadLogs: CanReadLogs(firmware),
  }

  r.log.Info().
    Str("Manufacturer", manufacturer).
    Str("Model", model).
    Str("Firmware", firmware).
    Bool("CanReadLogs", identity.CanReadLogs).
    Msg("gatt: device identified")

  return identity, nil
}

func (s *Session) sendReadCommand(ctx context.Context, r *run, conn ble.Conn) error {
  cmd := ReadCommand(s.opts.Now(), r.from)

  r.log.Debug().Hex("Command", cmd).Msg("gatt: requesting logs")

  if err := conn.WriteCharacteristic(ctx, TransferWriteUUID, cmd); err != nil {
    return fmt.Errorf("failed to write read command: %w", err)
  }

  r.commandSent = true
  return nil
}

func (s *Session) readLogs(ctx context.Context, r *run, conn ble.Conn) error {
  idle := time.NewTimer(s.opts.IdleTimeout)
  defer idle.Stop()

  for {
    for _, frame := range r.frames.drain() {
      finished, err := s.handleFrame(ctx, r, conn, frame)

      if err != nil || finished {
        return err
      }
    }

    select {
    case <-r.frames.signal:
      if !idle.Stop() {
        <-idle.C
      }

      idle.Reset(s.opts.IdleTimeout)
    case <-idle.C:
      return fmt.Errorf("%w: after %d points", ErrIdleTimeout, r.batch.len())
    case <-ctx.Done():
      return ctx.Err()
    }
  }
}

func (s *Session) handleFrame(ctx context.Context, r *run, conn ble.Conn, frame []byte) (bool, error) {
  switch Classify(frame) {
  case FrameHeartbeat:
    r.log.Trace().Hex("Frame", frame).Msg("gatt: heartbeat")
    r.listener.Heartbeat(hex.EncodeToString(frame))

    if !r.commandSent {
      return false, s.sendReadCommand(ctx, r, conn)
    }
  case FrameEnd:
    readings := r.batch.finish()

    r.log.Info().
      Int("Points", len(readings)).
      Int("Discarded", r.batch.len() - len(readings)).
      Msg("gatt: log transfer complete")

    r.listener.DataReady(readings)
    return true, nil
  default:
    f, err := ParseLogFrame(frame)

    if err != nil {
      r.log.Warn().Err(err).Hex("Frame", frame).Msg("gatt: ignoring frame")
      return false, nil
    }

    if r.batch.add(f) {
      logPointsCounter.Inc()
      r.listener.SyncProgress(r.batch.len())
    }
  }

  return false, nil
}

// finish is the only way out of a run: it closes the link and reports the disconnection once.
func (s *Session) finish(r *run, conn ble.Conn, err error) {
  s.setState(r, Disconnecting)

  switch {
  case err == nil:
    r.log.Debug().Msg("gatt: session complete")
  case errors.Is(err, context.Canceled) && !errors.Is(err, ErrLinkLost):
    r.log.Debug().Err(err).Msg("gatt: session aborted")
  default:
    sessionsFailedCounter.WithLabelValues(failureReason(err)).Inc()
    r.log.Error().Err(err).Msg("gatt: session failed")
  }

  if conn != nil {
    conn.Disconnect()

    select {
    case <-conn.Disconnected():
    case <-time.After(s.opts.SettleDelay):
      r.log.Warn().Msg("gatt: link still up after disconnecting")
    }
  }

  r.disconnected.Do(func() {
    r.listener.Connected(false)
  })

  r.cancel()
  s.setErr(r, err)
  s.setState(r, Done)
  s.settle(r)
}

func (s *Session) settle(r *run) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.current != r {
    return
  }

  s.settleGen++
  gen := s.settleGen

  time.AfterFunc(s.opts.SettleDelay, func() {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.settleGen == gen {
      s.connected = false
    }
  })
}

func failureReason(err error) string {
  switch {
  case errors.Is(err, ErrConnectionFailed):
    return "connection"
  case errors.Is(err, ErrServiceMismatch):
    return "service_mismatch"
  case errors.Is(err, ErrLinkLost):
    return "link_lost"
  case errors.Is(err, ErrIdleTimeout):
    return "idle_timeout"
  default:
    return "protocol"
  }
}
