package device

import (
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/rs/zerolog/log"
)

type TagSpec map[string]string

const (
  TagSpecFieldName = "name"
  TagSpecFieldAddress = "addr"
  TagSpecFieldLogs = "logs"
  TagSpecFieldLogsSince = "since"
)

func NewTagSpec(s string) TagSpec {
  spec := TagSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid tag spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ts TagSpec) Name() string {
  return ts[TagSpecFieldName]
}

func (ts TagSpec) Addr() string {
  return ts[TagSpecFieldAddress]
}

// Tag builds the tag described by this spec.
func (ts TagSpec) Tag() (*Tag, error) {
  if ts.Addr() == "" {
    return nil, fmt.Errorf("missing %q in tag spec", TagSpecFieldAddress)
  }

  t, err := NewTag(ts.Name(), ts.Addr())
  if err != nil {
    return nil, err
  }

  if logs := ts[TagSpecFieldLogs]; logs != "" {
    if t.ReadLogs, err = strconv.ParseBool(logs); err != nil {
      return nil, fmt.Errorf("invalid %q: %w", TagSpecFieldLogs, err)
    }
  }

  if since := ts[TagSpecFieldLogsSince]; since != "" {
    if t.LogsSince, err = ParseSince(since); err != nil {
      return nil, fmt.Errorf("invalid %q: %w", TagSpecFieldLogsSince, err)
    }
  }

  return t, nil
}

// ParseSince accepts either an RFC3339 timestamp or a duration relative to now (e.g. `24h`).
func ParseSince(v string) (time.Time, error) {
  if d, err := time.ParseDuration(v); err == nil {
    return time.Now().Add(-d), nil
  }

  return time.Parse(time.RFC3339, v)
}

func TagSpecHelp() string {
  return `Supported parameters:
addr (string, required): MAC address of the RuuviTag
name (string): Friendly name of the RuuviTag
logs (bool): Periodically download the history log from the tag
since (duration or RFC3339 time): Lower bound for the first history download`
}
