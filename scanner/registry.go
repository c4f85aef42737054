package scanner

import (
  "errors"
  "sync"

  "github.com/golang/groupcache/lru"
  "github.com/robertof/go-ruuvi-station/device"
)

var ErrUnknownDevice = errors.New("device was never seen as connectable")

// DefaultMaxDevices bounds the number of addresses remembered by a Registry.
const DefaultMaxDevices = 4096

type Decision int

const (
  Deliver Decision = iota
  Suppress
)

func (d Decision) String() string {
  if d == Suppress {
    return "suppress"
  }

  return "deliver"
}

// Registry remembers, per device address, the last delivered sequence number and the last
// connectable sighting. Entries are evicted least-recently-seen first once more than maxDevices
// addresses were observed.
type Registry struct {
  mu sync.Mutex

  sequences *lru.Cache // addr -> int
  connectable *lru.Cache // addr -> device.Measurement
}

func NewRegistry(maxDevices int) *Registry {
  if maxDevices <= 0 {
    maxDevices = DefaultMaxDevices
  }

  return &Registry{
    sequences: lru.New(maxDevices),
    connectable: lru.New(maxDevices),
  }
}

// Observe decides whether m must be delivered. Measurements without a sequence number are always
// delivered; the others only when their sequence number differs from the last delivered one for
// the same address.
func (r *Registry) Observe(m device.Measurement) Decision {
  if m.MeasurementSequence == nil {
    return Deliver
  }

  key := device.NormalizeAddr(m.Addr)
  seq := *m.MeasurementSequence

  r.mu.Lock()
  defer r.mu.Unlock()

  if last, ok := r.sequences.Get(key); ok && last.(int) == seq {
    return Suppress
  }

  r.sequences.Add(key, seq)

  return Deliver
}

// IsConnectable reports whether a tag accepts connections: it advertised its name, or a session
// with it is currently connected (tags drop the name from advertisements while connected).
func (r *Registry) IsConnectable(m device.Measurement, localNamePresent, sessionConnected bool) bool {
  return localNamePresent || sessionConnected
}

// Remember stores m as the last connectable sighting of its address.
func (r *Registry) Remember(m device.Measurement) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.connectable.Add(device.NormalizeAddr(m.Addr), m)
}

// ResolveDevice returns the last connectable sighting of addr.
func (r *Registry) ResolveDevice(addr string) (device.Measurement, error) {
  r.mu.Lock()
  defer r.mu.Unlock()

  m, ok := r.connectable.Get(device.NormalizeAddr(addr))

  if !ok {
    return device.Measurement{}, ErrUnknownDevice
  }

  return m.(device.Measurement), nil
}
