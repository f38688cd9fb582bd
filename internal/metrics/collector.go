package metrics

import (
	"strconv"
	"sync"

	"healthbox_bridge/internal/models"
	"healthbox_bridge/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "healthbox"

// Source is the coordinator as seen by the collector.
type Source interface {
	Snapshot() (models.DeviceSnapshot, bool)
	Status() service.CoordinatorStatus
}

// Collector exports the coordinator's last snapshot and poll status. It never
// talks to the device itself.
type Collector struct {
	source Source

	mu sync.Mutex

	scrapeSuccess prometheus.Gauge
	lastSuccess   prometheus.Gauge
	needsReauth   prometheus.Gauge
	globalAQI     prometheus.Gauge
	info          *prometheus.GaugeVec

	pollTotal    *prometheus.Desc
	pollFailures *prometheus.Desc

	temperature    *prometheus.GaugeVec
	humidity       *prometheus.GaugeVec
	co2            *prometheus.GaugeVec
	aqi            *prometheus.GaugeVec
	voc            *prometheus.GaugeVec
	airflow        *prometheus.GaugeVec
	boostLevel     *prometheus.GaugeVec
	boostEnabled   *prometheus.GaugeVec
	boostRemaining *prometheus.GaugeVec
}

func NewCollector(source Source) *Collector {
	roomLabels := []string{"room_id", "room"}
	roomGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      name,
			Help:      help,
		}, roomLabels)
	}
	return &Collector{
		source: source,
		scrapeSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scrape_success",
			Help:      "Last poll success (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Last successful poll timestamp (epoch seconds)",
		}),
		needsReauth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "needs_reauth",
			Help:      "1 while polling is halted because the device rejected the API key",
		}),
		globalAQI: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "global_aqi",
			Help:      "Global air quality index",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Healthbox device info",
		}, []string{"serial", "description", "warranty_number"}),
		pollTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "poll_total"),
			"Polls attempted since start", nil, nil,
		),
		pollFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "poll_failures_total"),
			"Failed polls since start", nil, nil,
		),
		temperature:    roomGauge("temperature_celsius", "Indoor temperature (celsius)"),
		humidity:       roomGauge("humidity_percent", "Indoor relative humidity (%)"),
		co2:            roomGauge("co2_ppm", "Indoor CO2 concentration (ppm)"),
		aqi:            roomGauge("aqi", "Indoor air quality index"),
		voc:            roomGauge("voc_ppm", "Indoor volatile organic compounds (ppm)"),
		airflow:        roomGauge("airflow_ratio", "Actual over nominal airflow (0..1)"),
		boostLevel:     roomGauge("boost_level_percent", "Boost level (%)"),
		boostEnabled:   roomGauge("boost_enabled", "1 while boost is active"),
		boostRemaining: roomGauge("boost_remaining_seconds", "Remaining boost time (seconds)"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.scrapeSuccess.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.needsReauth.Describe(ch)
	c.globalAQI.Describe(ch)
	c.info.Describe(ch)
	ch <- c.pollTotal
	ch <- c.pollFailures
	for _, v := range c.roomVecs() {
		v.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.source.Status()
	ch <- prometheus.MustNewConstMetric(c.pollTotal, prometheus.CounterValue, float64(st.PollTotal))
	ch <- prometheus.MustNewConstMetric(c.pollFailures, prometheus.CounterValue, float64(st.FailureTotal))

	c.scrapeSuccess.Set(boolFloat(st.State == service.StateHealthy))
	c.needsReauth.Set(boolFloat(st.State == service.StateNeedsReauth))
	if !st.LastSuccess.IsZero() {
		c.lastSuccess.Set(float64(st.LastSuccess.Unix()))
	}

	c.info.Reset()
	for _, v := range c.roomVecs() {
		v.Reset()
	}

	snap, ok := c.source.Snapshot()
	if ok {
		c.info.With(prometheus.Labels{
			"serial":          snap.Serial,
			"description":     snap.Description,
			"warranty_number": snap.WarrantyNumber,
		}).Set(1)
		setGauge(c.globalAQI, snap.GlobalAQI)
		for _, r := range snap.Rooms {
			c.collectRoom(r)
		}
	}

	c.collectAll(ch)
}

func (c *Collector) collectRoom(r models.RoomState) {
	labels := prometheus.Labels{"room_id": strconv.Itoa(r.RoomID), "room": r.Name}
	c.temperature.With(labels).Set(r.IndoorTemperature)
	c.humidity.With(labels).Set(r.IndoorHumidity)
	setGaugeVec(c.co2, labels, r.IndoorCO2Concentration)
	setGaugeVec(c.aqi, labels, r.IndoorAQI)
	setGaugeVec(c.voc, labels, r.IndoorVOC)
	setGaugeVec(c.airflow, labels, r.AirflowVentilationRate)
	if r.Boost != nil {
		c.boostLevel.With(labels).Set(r.Boost.Level)
		c.boostEnabled.With(labels).Set(boolFloat(r.Boost.Enabled))
		c.boostRemaining.With(labels).Set(float64(r.Boost.Remaining))
	}
}

func (c *Collector) collectAll(ch chan<- prometheus.Metric) {
	c.scrapeSuccess.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.needsReauth.Collect(ch)
	c.globalAQI.Collect(ch)
	c.info.Collect(ch)
	for _, v := range c.roomVecs() {
		v.Collect(ch)
	}
}

func (c *Collector) roomVecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.temperature, c.humidity, c.co2, c.aqi, c.voc,
		c.airflow, c.boostLevel, c.boostEnabled, c.boostRemaining,
	}
}

func setGauge(g prometheus.Gauge, v *float64) {
	if v == nil {
		return
	}
	g.Set(*v)
}

func setGaugeVec(g *prometheus.GaugeVec, labels prometheus.Labels, v *float64) {
	if v == nil {
		return
	}
	g.With(labels).Set(*v)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
