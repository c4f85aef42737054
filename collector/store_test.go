package collector

import (
  "testing"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
  tag, err := device.NewTag("kitchen", "CB:B8:33:4C:88:4F")
  require.NoError(t, err)

  s := NewStore([]*device.Tag{tag}, nil)
  now := time.Unix(1000, 0)
  s.now = func() time.Time { return now }

  s.OnTagFound(device.Measurement{Addr: "cb:b8:33:4c:88:4f", Temperature: device.Float(21)})
  s.OnTagFound(device.Measurement{Addr: "d1:d2:d3:d4:d5:d6", Temperature: device.Float(5)})

  latest := s.Latest()
  require.Len(t, latest, 2)

  assert.Equal(t, "kitchen", latest["cb:b8:33:4c:88:4f"].Name)
  assert.Equal(t, now, latest["cb:b8:33:4c:88:4f"].ReceivedAt)
  assert.Equal(t, "ruuvi-d1d2d3d4d5d6", latest["d1:d2:d3:d4:d5:d6"].Name)

  // snapshots are not affected by later updates.
  s.OnTagFound(device.Measurement{Addr: "cb:b8:33:4c:88:4f", Temperature: device.Float(22)})
  assert.Equal(t, device.Float(21), latest["cb:b8:33:4c:88:4f"].Measurement.Temperature)

  e, ok := s.Get("CB:B8:33:4C:88:4F")
  require.True(t, ok)
  assert.Equal(t, device.Float(22), e.Measurement.Temperature)

  _, ok = s.Get("00:00:00:00:00:01")
  assert.False(t, ok)
}

func TestStoreTracksReads(t *testing.T) {
  s := NewStore(nil, nil)
  now := time.Unix(1000, 0)
  s.now = func() time.Time { return now }

  s.Latest()
  now = now.Add(time.Minute)
  assert.Equal(t, time.Minute, s.sinceLastRead())

  select {
  case <-s.woken():
  default:
    t.Fatalf("Latest() did not signal a wake up")
  }
}

func TestStoreName(t *testing.T) {
  s := NewStore(nil, nil)

  assert.Equal(t, "ruuvi-cbb8334c884f", s.Name("CB:B8:33:4C:88:4F"))
  assert.Equal(t, "not-an-address", s.Name("not-an-address"))
}
