package utils

import (
  "fmt"
  "runtime/debug"

  "github.com/rs/zerolog"
)

// RecoverToLog runs f and turns a panic into an error log entry. It reports whether f returned
// normally.
func RecoverToLog(f func(), logger zerolog.Logger, msg string) (ok bool) {
  defer func() {
    if x := recover(); x != nil {
      logger.Error().
        Str("Panic", fmt.Sprint(x)).
        Bytes("Stack", debug.Stack()).
        Msg(msg)
      ok = false
    }
  }()

  f()
  return true
}
