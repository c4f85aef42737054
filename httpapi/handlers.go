package httpapi

import (
  "net/http"
  "sort"
  "sync"
  "time"

  "github.com/go-chi/chi/v5"
  "github.com/robertof/go-ruuvi-station/device"
  "github.com/robertof/go-ruuvi-station/gatt"
  "github.com/robertof/go-ruuvi-station/sink"
  "github.com/rs/zerolog/log"
)

// requestStatus records the events of the last session requested through the API for a tag.
type requestStatus struct {
  mu sync.Mutex

  action string
  startedAt time.Time
  connected bool
  finished bool
  model string
  firmware string
  canReadLogs *bool
  progress int
  heartbeats int
  logs *sink.LogsPayload
  name string
}

type RequestStatusResponse struct {
  Action string `json:"action"`
  StartedAt time.Time `json:"started_at"`
  Connected bool `json:"connected"`
  Finished bool `json:"finished"`
  Model string `json:"model,omitempty"`
  Firmware string `json:"firmware,omitempty"`
  CanReadLogs *bool `json:"can_read_logs,omitempty"`
  Progress int `json:"progress"`
  Heartbeats int `json:"heartbeats"`
  Logs *sink.LogsPayload `json:"logs,omitempty"`
}

func (r *requestStatus) Connected(connected bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.connected = connected

  if !connected {
    r.finished = true
  }
}

func (r *requestStatus) DeviceInfo(model, firmware string, canReadLogs bool) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.model = model
  r.firmware = firmware
  r.canReadLogs = &canReadLogs
}

func (r *requestStatus) Heartbeat(string) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.heartbeats++
}

func (r *requestStatus) SyncProgress(count int) {
  r.mu.Lock()
  defer r.mu.Unlock()

  r.progress = count
}

func (r *requestStatus) DataReady(readings []device.LogReading) {
  payload := sink.NewLogsPayload(r.name, readings)

  r.mu.Lock()
  defer r.mu.Unlock()

  r.logs = &payload
}

func (r *requestStatus) response() RequestStatusResponse {
  r.mu.Lock()
  defer r.mu.Unlock()

  return RequestStatusResponse{
    Action: r.action,
    StartedAt: r.startedAt,
    Connected: r.connected,
    Finished: r.finished,
    Model: r.model,
    Firmware: r.firmware,
    CanReadLogs: r.canReadLogs,
    Progress: r.progress,
    Heartbeats: r.heartbeats,
    Logs: r.logs,
  }
}

// HandleListTags returns the latest measurement of every tag in range, sorted by name.
func (s *Server) HandleListTags(w http.ResponseWriter, r *http.Request) {
  latest := s.tags.Latest()
  tags := make([]sink.MeasurementPayload, 0, len(latest))

  for _, e := range latest {
    tags = append(tags, sink.NewMeasurementPayload(e.Name, e.Measurement, e.ReceivedAt))
  }

  sort.Slice(tags, func(i, j int) bool {
    if tags[i].Name != tags[j].Name {
      return tags[i].Name < tags[j].Name
    }

    return tags[i].Addr < tags[j].Addr
  })

  respondJSON(w, http.StatusOK, tags)
}

func (s *Server) HandleGetTag(w http.ResponseWriter, r *http.Request) {
  addr := device.NormalizeAddr(chi.URLParam(r, "addr"))
  e, ok := s.tags.Get(addr)

  if !ok {
    respondError(w, http.StatusNotFound, "Tag not found")
    return
  }

  respondJSON(w, http.StatusOK, sink.NewMeasurementPayload(e.Name, e.Measurement, e.ReceivedAt))
}

// HandleReadLogs starts a log download. The optional from query parameter accepts a timestamp or a
// duration relative to now (e.g. 6h).
func (s *Server) HandleReadLogs(w http.ResponseWriter, r *http.Request) {
  addr := device.NormalizeAddr(chi.URLParam(r, "addr"))

  var from time.Time

  if v := r.URL.Query().Get("from"); v != "" {
    var err error

    if from, err = device.ParseSince(v); err != nil {
      respondError(w, http.StatusBadRequest, "Invalid from: "+err.Error())
      return
    }
  }

  status := s.track(addr, "logs")

  if !s.sessions.ReadLogs(addr, from, status) {
    s.untrack(addr, status)
    respondError(w, http.StatusNotFound, "Tag not found or not connectable")
    return
  }

  log.Info().Str("Addr", addr).Time("From", from).Msg("http: log download requested")
  respondJSON(w, http.StatusAccepted, status.response())
}

func (s *Server) HandleFetchVersion(w http.ResponseWriter, r *http.Request) {
  addr := device.NormalizeAddr(chi.URLParam(r, "addr"))
  status := s.track(addr, "version")

  if !s.sessions.FetchVersion(addr, status) {
    s.untrack(addr, status)
    respondError(w, http.StatusNotFound, "Tag not found or not connectable")
    return
  }

  log.Info().Str("Addr", addr).Msg("http: firmware version requested")
  respondJSON(w, http.StatusAccepted, status.response())
}

func (s *Server) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
  addr := device.NormalizeAddr(chi.URLParam(r, "addr"))

  s.mu.Lock()
  status, ok := s.requests[addr]
  s.mu.Unlock()

  if !ok {
    respondError(w, http.StatusNotFound, "No request for this tag")
    return
  }

  respondJSON(w, http.StatusOK, status.response())
}

func (s *Server) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
  addr := device.NormalizeAddr(chi.URLParam(r, "addr"))

  if !s.sessions.Disconnect(addr) {
    respondError(w, http.StatusNotFound, "No running session for this tag")
    return
  }

  respondJSON(w, http.StatusAccepted, map[string]bool{
    "connected": s.sessions.IsConnected(addr),
  })
}

func (s *Server) track(addr, action string) *requestStatus {
  status := &requestStatus{
    action: action,
    startedAt: time.Now(),
    name: s.tags.Name(addr),
  }

  s.mu.Lock()
  s.requests[addr] = status
  s.mu.Unlock()

  return status
}

func (s *Server) untrack(addr string, status *requestStatus) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.requests[addr] == status {
    delete(s.requests, addr)
  }
}

var _ gatt.Listener = (*requestStatus)(nil)
