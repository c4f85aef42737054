package ble_test

import (
  "testing"

  "github.com/robertof/go-ruuvi-station/ble"
)

func TestSameUUID(t *testing.T) {
  tests := []struct{
    a, b ble.UUID
    want bool
  }{
    {ble.UUID16(0x180a), ble.UUID16(0x180a), true},
    {ble.UUID16(0x180a), ble.MustParse("0000180a-0000-1000-8000-00805f9b34fb"), true},
    {ble.MustParse("0000feaa-0000-1000-8000-00805f9b34fb"), ble.UUID16(0xfeaa), true},
    {ble.UUID16(0x180a), ble.UUID16(0x2a29), false},
    {
      ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
      ble.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e"),
      false,
    },
  }

  for _, tt := range tests {
    if got := ble.SameUUID(tt.a, tt.b); got != tt.want {
      t.Fatalf("SameUUID(%v, %v): got %v, wanted %v", tt.a, tt.b, got, tt.want)
    }
  }
}
