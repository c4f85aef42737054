package ble_test

import (
  "bytes"
  "testing"

  goble "github.com/go-ble/ble"
  "github.com/robertof/go-ruuvi-station/ble"
)

type advertisement struct {
  name string
  manufacturerData []byte
  serviceData []goble.ServiceData
  services []goble.UUID
}

func (a advertisement) LocalName() string { return a.name }
func (a advertisement) ManufacturerData() []byte { return a.manufacturerData }
func (a advertisement) ServiceData() []goble.ServiceData { return a.serviceData }
func (a advertisement) Services() []goble.UUID { return a.services }
func (a advertisement) OverflowService() []goble.UUID { return nil }
func (a advertisement) TxPowerLevel() int { return 0 }
func (a advertisement) Connectable() bool { return a.name != "" }
func (a advertisement) SolicitedService() []goble.UUID { return nil }
func (a advertisement) RSSI() int { return -70 }
func (a advertisement) Addr() goble.Addr { return goble.NewAddr("CB:B8:33:4C:88:4F") }

func TestScanFilterMatch(t *testing.T) {
  filter := ble.ScanFilter{
    ManufacturerIDs: []uint16{0x0499},
    ServiceUUIDs: []ble.UUID{ble.MustParse("0000feaa-0000-1000-8000-00805f9b34fb")},
  }

  tests := []struct{
    name string
    a advertisement
    want bool
  }{
    {"ruuvi manufacturer data", advertisement{manufacturerData: []byte{0x99, 0x04, 0x05}}, true},
    {"other manufacturer", advertisement{manufacturerData: []byte{0x4c, 0x00, 0x02}}, false},
    {"short manufacturer data", advertisement{manufacturerData: []byte{0x99}}, false},
    {"eddystone service", advertisement{services: []goble.UUID{goble.UUID16(0xfeaa)}}, true},
    {
      "eddystone service data",
      advertisement{serviceData: []goble.ServiceData{{UUID: goble.UUID16(0xfeaa), Data: []byte{0x10}}}},
      true,
    },
    {"nothing", advertisement{name: "Ruuvi 884F"}, false},
  }

  for _, tt := range tests {
    if got := filter.Match(tt.a); got != tt.want {
      t.Fatalf("Match(%s): got %v, wanted %v", tt.name, got, tt.want)
    }
  }

  if !(ble.ScanFilter{}).Match(advertisement{}) {
    t.Fatalf("Match(empty filter): got false, wanted true")
  }
}

func TestNewScanResult(t *testing.T) {
  a := advertisement{
    name: "Ruuvi",
    manufacturerData: []byte{0x99, 0x04, 0x05, 0x12},
    serviceData: []goble.ServiceData{{UUID: goble.UUID16(0xfeaa), Data: []byte{0x10, 0x20}}},
  }

  got := ble.NewScanResult(a)

  want := []byte{
    0x06, 0x09, 'R', 'u', 'u', 'v', 'i',
    0x05, 0xff, 0x99, 0x04, 0x05, 0x12,
    0x05, 0x16, 0xaa, 0xfe, 0x10, 0x20,
  }

  if !bytes.Equal(got.Data, want) {
    t.Fatalf("NewScanResult(%+v).Data: got %x, wanted %x", a, got.Data, want)
  }

  if got.Addr != "cb:b8:33:4c:88:4f" || got.RSSI != -70 || got.LocalName != "Ruuvi" {
    t.Fatalf("NewScanResult(%+v): got %+#v", a, got)
  }
}
