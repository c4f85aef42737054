package gatt

import (
  "fmt"
  "strings"
  "unicode"

  "github.com/blang/semver"
)

// MinLogFirmware is the first firmware release able to stream its history log.
var MinLogFirmware = semver.MustParse("3.28.12")

// ParseFirmware extracts the version out of a firmware revision string such as "RuuviFW 3.28.12".
func ParseFirmware(firmware string) (semver.Version, error) {
  s := strings.Trim(firmware, "\x00 \t\r\n")
  start := strings.IndexFunc(s, unicode.IsDigit)

  if start == -1 {
    return semver.Version{}, fmt.Errorf("no version in firmware %q", firmware)
  }

  v, err := semver.Parse(s[start:])

  if err != nil {
    return semver.Version{}, fmt.Errorf("invalid version in firmware %q: %w", firmware, err)
  }

  return v, nil
}

// CanReadLogs reports whether a tag running firmware supports the log transfer. Debug builds are
// always assumed to. Unparseable versions don't.
func CanReadLogs(firmware string) bool {
  v, err := ParseFirmware(firmware)

  if err != nil {
    return false
  }

  return isDebugBuild(v) || v.GTE(MinLogFirmware)
}

func isDebugBuild(v semver.Version) bool {
  for _, pre := range v.Pre {
    if strings.Contains(strings.ToLower(pre.String()), "debug") {
      return true
    }
  }

  for _, build := range v.Build {
    if strings.Contains(strings.ToLower(build), "debug") {
      return true
    }
  }

  return false
}
