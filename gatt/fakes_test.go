package gatt_test

import (
  "context"
  "encoding/binary"
  "errors"
  "sync"
  "sync/atomic"

  "github.com/robertof/go-ruuvi-station/ble"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/gatt"
)

var errRadio = errors.New("radio failure")

func ruuviServices() []ble.Service {
  return []ble.Service{
    {UUID: ble.UUID16(0x1800), Characteristics: []ble.UUID{ble.UUID16(0x2a00)}},
    {UUID: gatt.IdentityServiceUUID, Characteristics: []ble.UUID{gatt.ManufacturerUUID, gatt.ModelUUID, gatt.FirmwareUUID}},
    {UUID: gatt.TransferServiceUUID, Characteristics: []ble.UUID{gatt.TransferWriteUUID, gatt.TransferNotifyUUID}},
  }
}

func logFrame(code byte, timestamp, value uint32) []byte {
  frame := []byte{0x3a, code, 0x10}
  frame = binary.BigEndian.AppendUint32(frame, timestamp)
  return binary.BigEndian.AppendUint32(frame, value)
}

func temperatureFrame(ts uint32, v int32) []byte {
  return logFrame(0x30, ts, uint32(v))
}

func humidityFrame(ts, v uint32) []byte {
  return logFrame(0x31, ts, v)
}

func pressureFrame(ts, v uint32) []byte {
  return logFrame(0x32, ts, v)
}

var endFrame = []byte{0x3a, 0x3a, 0x10, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var heartbeatFrame = []byte{0x05, 0x01, 0x02}

type fakeConn struct {
  services []ble.Service
  firmware string
  discoverErr error
  subscribeErr error
  readErr error
  writeErr error

  // sent right after notifications are enabled, and after the read command is written.
  onSubscribe [][]byte
  onCommand [][]byte

  mu sync.Mutex
  writes [][]byte
  subscribed bool
  notify func([]byte)

  disconnects atomic.Int32
  disconnected chan struct{}
  closeOnce sync.Once
}

func newFakeConn(firmware string) *fakeConn {
  return &fakeConn{
    services: ruuviServices(),
    firmware: firmware,
    disconnected: make(chan struct{}),
  }
}

func (c *fakeConn) Addr() string {
  return "cb:b8:33:4c:88:4f"
}

func (c *fakeConn) DiscoverServices(ctx context.Context) ([]ble.Service, error) {
  return c.services, c.discoverErr
}

func (c *fakeConn) ReadCharacteristic(ctx context.Context, uuid ble.UUID) ([]byte, error) {
  if c.readErr != nil {
    return nil, c.readErr
  }

  switch {
  case ble.SameUUID(uuid, gatt.ManufacturerUUID):
    return []byte("Ruuvi Innovations Ltd\x00"), nil
  case ble.SameUUID(uuid, gatt.ModelUUID):
    return []byte("RuuviTag"), nil
  case ble.SameUUID(uuid, gatt.FirmwareUUID):
    return []byte(c.firmware), nil
  }

  return nil, errRadio
}

func (c *fakeConn) WriteCharacteristic(ctx context.Context, uuid ble.UUID, value []byte) error {
  c.mu.Lock()
  c.writes = append(c.writes, value)
  notify := c.notify
  c.mu.Unlock()

  if c.writeErr != nil {
    return c.writeErr
  }

  for _, frame := range c.onCommand {
    notify(frame)
  }

  return nil
}

func (c *fakeConn) EnableNotifications(ctx context.Context, uuid ble.UUID, onValue func([]byte)) error {
  if c.subscribeErr != nil {
    return c.subscribeErr
  }

  c.mu.Lock()
  c.subscribed = true
  c.notify = onValue
  c.mu.Unlock()

  for _, frame := range c.onSubscribe {
    onValue(frame)
  }

  return nil
}

func (c *fakeConn) Disconnect() {
  c.disconnects.Add(1)
  c.drop()
}

// drop simulates the tag going away.
func (c *fakeConn) drop() {
  c.closeOnce.Do(func() { close(c.disconnected) })
}

func (c *fakeConn) Disconnected() <-chan struct{} {
  return c.disconnected
}

func (c *fakeConn) getWrites() [][]byte {
  c.mu.Lock()
  defer c.mu.Unlock()

  return append([][]byte{}, c.writes...)
}

func (c *fakeConn) isSubscribed() bool {
  c.mu.Lock()
  defer c.mu.Unlock()

  return c.subscribed
}

type fakeDialer struct {
  // the first failures attempts fail.
  failures int
  conns []*fakeConn

  mu sync.Mutex
  attempts int
  addrs []string
}

func (d *fakeDialer) Connect(ctx context.Context, addr string) (ble.Conn, error) {
  d.mu.Lock()
  defer d.mu.Unlock()

  d.attempts++
  d.addrs = append(d.addrs, addr)

  if d.attempts <= d.failures || len(d.conns) == 0 {
    return nil, errRadio
  }

  conn := d.conns[0]
  if len(d.conns) > 1 {
    d.conns = d.conns[1:]
  }

  return conn, nil
}

func (d *fakeDialer) getAttempts() int {
  d.mu.Lock()
  defer d.mu.Unlock()

  return d.attempts
}

type deviceInfo struct {
  model, firmware string
  canReadLogs bool
}

type recorder struct {
  mu sync.Mutex
  connected []bool
  infos []deviceInfo
  heartbeats []string
  progress []int
  batches [][]device.LogReading
}

func (r *recorder) Connected(connected bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.connected = append(r.connected, connected)
}

func (r *recorder) DeviceInfo(model, firmware string, canReadLogs bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.infos = append(r.infos, deviceInfo{model, firmware, canReadLogs})
}

func (r *recorder) Heartbeat(raw string) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.heartbeats = append(r.heartbeats, raw)
}

func (r *recorder) SyncProgress(count int) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.progress = append(r.progress, count)
}

func (r *recorder) DataReady(readings []device.LogReading) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.batches = append(r.batches, readings)
}

func (r *recorder) getConnected() []bool {
  r.mu.Lock()
  defer r.mu.Unlock()

  return append([]bool{}, r.connected...)
}

type resolver map[string]device.Measurement

func (r resolver) ResolveDevice(addr string) (device.Measurement, error) {
  m, ok := r[addr]
  if !ok {
    return device.Measurement{}, errors.New("unknown device")
  }

  return m, nil
}
