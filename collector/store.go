package collector

import (
  "sync"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "golang.org/x/exp/maps"
)

type Entry struct {
  Name string
  Measurement device.Measurement
  ReceivedAt time.Time
}

// Store keeps the latest measurement of every tag in range. It is the scanner listener of the
// station.
type Store struct {
  forwarder *Forwarder
  now func() time.Time

  mu sync.Mutex
  names map[string]string
  latest map[string]Entry
  lastRead time.Time

  wake chan struct{}
}

// NewStore returns a store naming tags after their configuration. forwarder may be nil.
func NewStore(tags []*device.Tag, forwarder *Forwarder) *Store {
  return &Store{
    forwarder: forwarder,
    now: time.Now,
    names: tagNames(tags),
    latest: make(map[string]Entry),
    lastRead: time.Now(),
    wake: make(chan struct{}, 1),
  }
}

func (s *Store) OnTagFound(m device.Measurement) {
  key := device.NormalizeAddr(m.Addr)
  name := s.Name(key)

  s.mu.Lock()
  s.latest[key] = Entry{Name: name, Measurement: m, ReceivedAt: s.now()}
  s.mu.Unlock()

  s.forwarder.Measurement(name, m)
}

// Latest returns a snapshot of the latest measurements keyed by address. Reading wakes up a
// suspended collector.
func (s *Store) Latest() map[string]Entry {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.lastRead = s.now()

  select {
  case s.wake <- struct{}{}:
  default:
  }

  return maps.Clone(s.latest)
}

func (s *Store) Get(addr string) (Entry, bool) {
  s.mu.Lock()
  defer s.mu.Unlock()

  e, ok := s.latest[device.NormalizeAddr(addr)]
  return e, ok
}

// Name returns the configured name of a tag, or one derived from its address.
func (s *Store) Name(addr string) string {
  key := device.NormalizeAddr(addr)

  s.mu.Lock()
  name, ok := s.names[key]
  s.mu.Unlock()

  if ok {
    return name
  }

  tag, err := device.NewTag("", key)

  if err != nil {
    return key
  }

  return tag.Name()
}

func (s *Store) sinceLastRead() time.Duration {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.now().Sub(s.lastRead)
}

// woken is signalled by Latest.
func (s *Store) woken() <-chan struct{} {
  return s.wake
}
