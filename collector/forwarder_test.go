package collector

import (
  "context"
  "testing"
  "time"

  "github.com/robertof/go-ruuvi-station/device"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func TestForwarder(t *testing.T) {
  sink := &recordingSink{}
  f := NewForwarder(sink)

  ctx, cancel := context.WithCancel(context.Background())
  done := make(chan error)

  go func() { done <- f.Run(ctx) }()

  store := NewStore(nil, f)
  store.OnTagFound(device.Measurement{Addr: "cb:b8:33:4c:88:4f"})
  f.Logs(ctx, "kitchen", []device.LogReading{{Addr: "cb:b8:33:4c:88:4f"}})

  require.Eventually(t, func() bool {
    measurements, logs, _ := sink.snapshot()
    return len(measurements) == 1 && logs == 1
  }, time.Second, time.Millisecond)

  measurements, _, _ := sink.snapshot()
  assert.Equal(t, []string{"ruuvi-cbb8334c884f"}, measurements)

  cancel()
  require.NoError(t, <-done)

  _, _, closed := sink.snapshot()
  assert.True(t, closed)
}

func TestForwarderDropsWhenFull(t *testing.T) {
  f := NewForwarder(&recordingSink{})

  for i := 0; i < forwarderQueueSize + 10; i++ {
    f.Measurement("kitchen", device.Measurement{})
  }

  assert.Len(t, f.queue, forwarderQueueSize)
}

func TestNilForwarder(t *testing.T) {
  var f *Forwarder

  f.Measurement("kitchen", device.Measurement{})
  f.Logs(context.Background(), "kitchen", nil)
}
