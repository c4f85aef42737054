package gatt

import "github.com/prometheus/client_golang/prometheus"

var (
  sessionsStartedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "ruuvi_station_gatt_sessions_started_total",
  }, []string{"action"})
  sessionsFailedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "ruuvi_station_gatt_sessions_failed_total",
  }, []string{"reason"})
  connectAttemptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_gatt_connect_attempts_total",
  })
  logPointsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "ruuvi_station_gatt_log_points_received_total",
  })
  activeSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
    Name: "ruuvi_station_gatt_active_sessions",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    sessionsStartedCounter,
    sessionsFailedCounter,
    connectAttemptsCounter,
    logPointsCounter,
    activeSessionsGauge,
  )
}
