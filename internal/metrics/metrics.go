// Package metrics exposes the adapter's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocoro_polls_total",
		Help: "Cloud poll attempts by result.",
	}, []string{"result"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cocoro_commands_total",
		Help: "Device control commands by command and result.",
	}, []string{"command", "result"})

	DevicesSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cocoro_devices",
		Help: "Devices in the last successful snapshot.",
	})
)
