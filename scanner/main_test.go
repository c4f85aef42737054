package scanner_test

import (
  "os"
  "testing"

  "github.com/rs/zerolog"
)

// Tests run quietly unless TRACE or DEBUG is set, as for the binary.
func TestMain(m *testing.M) {
  switch {
  case os.Getenv("TRACE") != "":
    zerolog.SetGlobalLevel(zerolog.TraceLevel)
  case os.Getenv("DEBUG") != "":
    zerolog.SetGlobalLevel(zerolog.DebugLevel)
  default:
    zerolog.SetGlobalLevel(zerolog.Disabled)
  }

  os.Exit(m.Run())
}
