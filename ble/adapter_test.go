package ble

import (
  "errors"
  "syscall"
  "testing"
)

func TestAdapterErrorKeepsCause(t *testing.T) {
  err := adapterError(syscall.EPERM)

  if !errors.Is(err, ErrAdapterUnavailable) {
    t.Fatalf("adapterError(EPERM): got %v, wanted it to match ErrAdapterUnavailable", err)
  }

  if !errors.Is(err, syscall.EPERM) {
    t.Fatalf("adapterError(EPERM): got %v, wanted it to match EPERM", err)
  }
}

func TestAvailable(t *testing.T) {
  var h *Handle

  if err := h.Available(); !errors.Is(err, ErrAdapterUnavailable) {
    t.Fatalf("Available(nil): got %v, wanted %v", err, ErrAdapterUnavailable)
  }
}
