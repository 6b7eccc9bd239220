package samsungac

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// MetricsCollector scrapes every unit's status on each Prometheus collection.
type MetricsCollector struct {
	client *Client
	cfg    Config

	mu    sync.Mutex
	units []Unit

	success     prometheus.Gauge
	switchOn    *prometheus.GaugeVec
	mode        *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	setpoint    *prometheus.GaugeVec
}

func NewMetricsCollector(client *Client, cfg Config) *MetricsCollector {
	labels := []string{"device_id", "device_name"}
	return &MetricsCollector{
		client: client,
		cfg:    cfg,
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_scrape_success",
			Help: "Last scrape success (1=ok, 0=error)",
		}),
		switchOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_switch_on",
			Help: "Power switch state (1=on, 0=off)",
		}, labels),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_mode",
			Help: "Air conditioner mode (1=active)",
		}, append(labels, "mode")),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_temperature_celsius",
			Help: "Room temperature measured by the unit (celsius)",
		}, labels),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_humidity_percent",
			Help: "Relative humidity measured by the unit (%)",
		}, labels),
		setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acbridge_samsungac_cooling_setpoint_celsius",
			Help: "Cooling setpoint (celsius)",
		}, labels),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.success.Describe(ch)
	c.switchOn.Describe(ch)
	c.mode.Describe(ch)
	c.temperature.Describe(ch)
	c.humidity.Describe(ch)
	c.setpoint.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.scrape(ctx)
	if ok {
		c.success.Set(1)
	} else {
		c.success.Set(0)
	}

	c.switchOn.Collect(ch)
	c.mode.Collect(ch)
	c.temperature.Collect(ch)
	c.humidity.Collect(ch)
	c.setpoint.Collect(ch)
	c.success.Collect(ch)
}

// scrape keeps the previous values of units whose status call fails.
func (c *MetricsCollector) scrape(ctx context.Context) bool {
	if c.units == nil {
		units, err := c.client.Units(ctx, c.cfg)
		if err != nil {
			log.Warn().Err(err).Msg("samsungac metrics: list units failed")
			return false
		}
		c.units = units
	}

	ok := true
	for _, unit := range c.units {
		status, err := c.client.Status(ctx, unit.Device.ID)
		if err != nil {
			log.Warn().Err(err).Str("device_id", unit.Device.ID).Msg("samsungac metrics: status failed")
			ok = false
			continue
		}
		c.observe(unit, status)
	}
	return ok
}

func (c *MetricsCollector) observe(unit Unit, status DeviceStatus) {
	labels := prometheus.Labels{
		"device_id":   unit.Device.ID,
		"device_name": unit.Device.DisplayName(),
	}

	if status.Switch != "" {
		c.switchOn.With(labels).Set(boolToFloat(status.Switch == SwitchOn))
	}
	if status.Mode != "" {
		c.mode.DeletePartialMatch(labels)
		c.mode.With(prometheus.Labels{
			"device_id":   unit.Device.ID,
			"device_name": unit.Device.DisplayName(),
			"mode":        status.Mode,
		}).Set(1)
	}
	unitName := status.TemperatureUnit
	if unitName == "" {
		unitName = unit.TemperatureUnit
	}
	if status.Temperature != nil {
		c.temperature.With(labels).Set(ToCelsius(*status.Temperature, unitName))
	}
	if status.Humidity != nil {
		c.humidity.With(labels).Set(*status.Humidity)
	}
	if status.CoolingSetpoint != nil {
		c.setpoint.With(labels).Set(ToCelsius(*status.CoolingSetpoint, unitName))
	}
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
