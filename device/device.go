package device

import (
  "errors"
  "fmt"
  "net"
  "strings"
  "time"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrUnknownFormat = errors.New("unknown data format")
)

// Tag is a sensor explicitly configured by the user. Tags are optional: every tag in range is
// forwarded, configured tags just get a friendly name and optional periodic log sync.
type Tag struct {
  name string
  addr net.HardwareAddr

  // ReadLogs enables periodic history sync for this tag.
  ReadLogs bool
  // LogsSince is the lower bound used for the first history sync.
  LogsSince time.Time
}

func NewTag(name string, addr string) (*Tag, error) {
  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  if name == "" {
    name = "ruuvi-" + strings.ToLower(strings.ReplaceAll(hwAddr.String(), ":", ""))
  }

  return &Tag{name: name, addr: hwAddr}, nil
}

func (t *Tag) Name() string {
  return t.name
}

func (t *Tag) Addr() net.HardwareAddr {
  return t.addr
}

// Key is the normalized address used to index registries and sessions.
func (t *Tag) Key() string {
  return NormalizeAddr(t.addr.String())
}

func (t *Tag) String() string {
  return fmt.Sprintf("ruuvi[name=%q, addr=%v]", t.name, t.addr.String())
}

// NormalizeAddr lower-cases an address so that lookups don't depend on how the radio stack or the
// user spelled it.
func NormalizeAddr(addr string) string {
  return strings.ToLower(strings.TrimSpace(addr))
}
