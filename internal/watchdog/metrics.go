package watchdog

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the watchdog's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	launches     *prometheus.CounterVec
	restarts     *prometheus.CounterVec
	terminations *prometheus.CounterVec
	currentPID   prometheus.Gauge
	transferring prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "launches_total",
			Help:      "Server launch attempts by port and result.",
		}, []string{"port", "result"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "restarts_total",
			Help:      "Blue/green restarts by result.",
		}, []string{"result"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "terminations_total",
			Help:      "Process termination attempts by result.",
		}, []string{"result"}),
		currentPID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "watchdog",
			Name:      "current_server_pid",
			Help:      "Pid of the server instance currently holding the main port (0 if none).",
		}),
		transferring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "watchdog",
			Name:      "transferring",
			Help:      "1 while a blue/green restart is requested or in progress.",
		}),
	}

	m.registry.MustRegister(m.launches, m.restarts, m.terminations, m.currentPID, m.transferring)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeLaunch(port int, err error) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(strconv.Itoa(port), result(err)).Inc()
}

func (m *Metrics) observeRestart(err error) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) observeTermination(err error) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) setCurrentPID(pid int) {
	if m == nil {
		return
	}
	m.currentPID.Set(float64(pid))
}

func (m *Metrics) setMode(mode Mode) {
	if m == nil {
		return
	}
	if mode == ModeTransferring {
		m.transferring.Set(1)
		return
	}
	m.transferring.Set(0)
}
