package gatt

import (
  "context"
  "sync"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/rs/zerolog/log"
)

// Resolver finds the last connectable sighting of a tag. *scanner.Registry implements it.
type Resolver interface {
  ResolveDevice(addr string) (device.Measurement, error)
}

// Manager owns at most one Session per tag address. Sessions of different tags run concurrently.
type Manager struct {
  ctx context.Context
  dialer Dialer
  resolver Resolver
  opts Options

  mu sync.Mutex
  sessions map[string]*Session
}

// NewManager returns a manager whose sessions are all aborted once ctx is done.
func NewManager(ctx context.Context, dialer Dialer, resolver Resolver, opts Options) *Manager {
  return &Manager{
    ctx: ctx,
    dialer: dialer,
    resolver: resolver,
    opts: opts.withDefaults(),
    sessions: make(map[string]*Session),
  }
}

// Request runs action against the tag at addr, resetting any request already running for it. It
// reports false when the tag was never seen accepting connections.
func (m *Manager) Request(addr string, action Action, from time.Time, listener Listener) bool {
  s, ok := m.session(addr)

  if !ok {
    log.Warn().Str("Addr", addr).Stringer("Action", action).Msg("gatt: unknown device")
    return false
  }

  s.Start(m.ctx, action, from, listener)
  return true
}

func (m *Manager) ReadLogs(addr string, from time.Time, listener Listener) bool {
  return m.Request(addr, FetchLogs, from, listener)
}

func (m *Manager) FetchVersion(addr string, listener Listener) bool {
  return m.Request(addr, FetchVersion, time.Time{}, listener)
}

// Disconnect aborts the request running for addr, if any.
func (m *Manager) Disconnect(addr string) bool {
  s := m.lookup(addr)

  if s == nil {
    return false
  }

  return s.Disconnect()
}

func (m *Manager) IsConnected(addr string) bool {
  s := m.lookup(addr)
  return s != nil && s.IsConnected()
}

// Session returns the session of addr, if one was ever started.
func (m *Manager) Session(addr string) (*Session, bool) {
  s := m.lookup(addr)
  return s, s != nil
}

// Shutdown aborts every session and waits for them to disconnect.
func (m *Manager) Shutdown() {
  m.mu.Lock()
  sessions := make([]*Session, 0, len(m.sessions))
  for _, s := range m.sessions {
    sessions = append(sessions, s)
  }
  m.mu.Unlock()

  for _, s := range sessions {
    s.Disconnect()
  }

  for _, s := range sessions {
    s.Wait()
  }
}

func (m *Manager) lookup(addr string) *Session {
  m.mu.Lock()
  defer m.mu.Unlock()

  return m.sessions[device.NormalizeAddr(addr)]
}

func (m *Manager) session(addr string) (*Session, bool) {
  key := device.NormalizeAddr(addr)

  m.mu.Lock()
  s := m.sessions[key]
  m.mu.Unlock()

  if s != nil {
    return s, true
  }

  target, err := m.resolver.ResolveDevice(key)

  if err != nil {
    return nil, false
  }

  m.mu.Lock()
  defer m.mu.Unlock()

  // lost a race with another request for the same tag.
  if s := m.sessions[key]; s != nil {
    return s, true
  }

  s = NewSession(device.NormalizeAddr(target.Addr), m.dialer, m.opts)
  m.sessions[key] = s

  return s, true
}
