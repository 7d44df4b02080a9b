package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts lifecycle outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	logins      *prometheus.CounterVec
	rotations   *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	logouts     *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heirloom",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Session issuance attempts by outcome.",
		}, []string{"outcome"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heirloom",
			Subsystem: "auth",
			Name:      "refresh_rotations_total",
			Help:      "Refresh-token rotations by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heirloom",
			Subsystem: "auth",
			Name:      "session_resolutions_total",
			Help:      "Per-request session resolutions by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heirloom",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logouts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.rotations, m.resolutions, m.logouts)
	}
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.logins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) rotation(outcome string) {
	if m != nil {
		m.rotations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) resolution(outcome string) {
	if m != nil {
		m.resolutions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) logout(outcome string) {
	if m != nil {
		m.logouts.WithLabelValues(outcome).Inc()
	}
}
