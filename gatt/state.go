package gatt

import "strconv"

type State int

const (
  Idle State = iota
  Connecting
  DiscoveringServices
  ReadingIdentity
  Subscribing
  ReadingLogs
  Disconnecting
  Done
)

var stateNames = [...]string{
  Idle: "idle",
  Connecting: "connecting",
  DiscoveringServices: "discovering services",
  ReadingIdentity: "reading identity",
  Subscribing: "subscribing",
  ReadingLogs: "reading logs",
  Disconnecting: "disconnecting",
  Done: "done",
}

func (s State) String() string {
  if s >= 0 && int(s) < len(stateNames) {
    return stateNames[s]
  }

  return "State(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether a session in this state is winding down or finished.
func (s State) Terminal() bool {
  return s == Disconnecting || s == Done
}

type Action int

const (
  FetchLogs Action = iota
  FetchVersion
)

func (a Action) String() string {
  switch a {
  case FetchLogs:
    return "fetch logs"
  case FetchVersion:
    return "fetch version"
  default:
    return "Action(" + strconv.Itoa(int(a)) + ")"
  }
}
