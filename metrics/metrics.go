package metrics

import (
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-ruuvi-station/collector"
)

var labels = []string{"name", "addr"}

var (
  descTemperature = prometheus.NewDesc(
    "ruuvi_temperature_celsius",
    "Temperature reported by the tag in Celsius.",
    labels,
    nil,
  )

  descHumidity = prometheus.NewDesc(
    "ruuvi_humidity_ratio",
    "Relative humidity reported by the tag.",
    labels,
    nil,
  )

  descPressure = prometheus.NewDesc(
    "ruuvi_pressure_pascals",
    "Air pressure reported by the tag in Pascals.",
    labels,
    nil,
  )

  descAcceleration = prometheus.NewDesc(
    "ruuvi_acceleration_g",
    "Acceleration reported by the tag, per axis.",
    append([]string{"axis"}, labels...),
    nil,
  )

  descVoltage = prometheus.NewDesc(
    "ruuvi_battery_volts",
    "Battery voltage reported by the tag.",
    labels,
    nil,
  )

  descTxPower = prometheus.NewDesc(
    "ruuvi_tx_power_dbm",
    "Transmit power of the tag.",
    labels,
    nil,
  )

  descMovement = prometheus.NewDesc(
    "ruuvi_movement_count",
    "Movement counter of the tag. Wraps around after 254.",
    labels,
    nil,
  )

  descSequence = prometheus.NewDesc(
    "ruuvi_measurement_sequence_number",
    "Sequence number of the last measurement received from the tag.",
    labels,
    nil,
  )

  descRSSI = prometheus.NewDesc(
    "ruuvi_rssi_dbm",
    "Signal strength of the last advertisement received from the tag.",
    labels,
    nil,
  )

  descFormat = prometheus.NewDesc(
    "ruuvi_format_info",
    "Data format of the last advertisement received from the tag.",
    labels,
    nil,
  )
)

type CollectFunc func() map[string]collector.Entry

type tagCollector struct {
  CollectFunc
}

func (c *tagCollector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *tagCollector) Collect(ch chan<- prometheus.Metric) {
  for addr, entry := range c.CollectFunc() {
    m := entry.Measurement
    ts := entry.ReceivedAt

    gauge := func(desc *prometheus.Desc, v *float64, scale float64, extraLabels ...string) {
      if v == nil {
        return
      }

      metric := prometheus.MustNewConstMetric(
        desc,
        prometheus.GaugeValue,
        *v * scale,
        append(extraLabels, entry.Name, addr)...,
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, metric)
    }

    intGauge := func(desc *prometheus.Desc, v *int) {
      if v != nil {
        f := float64(*v)
        gauge(desc, &f, 1)
      }
    }

    gauge(descTemperature, m.Temperature, 1)
    gauge(descHumidity, m.Humidity, 0.01)
    gauge(descPressure, m.Pressure, 1)
    gauge(descAcceleration, m.AccelX, 1, "x")
    gauge(descAcceleration, m.AccelY, 1, "y")
    gauge(descAcceleration, m.AccelZ, 1, "z")
    gauge(descVoltage, m.Voltage, 1)
    gauge(descTxPower, m.TxPower, 1)
    intGauge(descMovement, m.MovementCounter)
    intGauge(descSequence, m.MeasurementSequence)

    rssi := m.RSSI
    intGauge(descRSSI, &rssi)

    format := m.DataFormat
    intGauge(descFormat, &format)
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &tagCollector{f}

  reg.MustRegister(c)
}
