package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Online = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "rider_agent", Name: "online", Help: "1 while the rider is online"})

	LocationWritesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "location_writes_total", Help: "Location reports sent to the backend"})
	LocationWritesSuppressed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "location_writes_suppressed_total", Help: "Reporting cycles skipped below the movement threshold"})
	LocationWriteFailures    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "location_write_failures_total", Help: "Location reports that failed on the wire"})

	OrderPollsTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "order_polls_total", Help: "Active-order refreshes attempted"})
	OrderPollFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "order_poll_failures_total", Help: "Active-order refreshes that failed"})

	OrderActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rider_agent", Name: "order_actions_total", Help: "User-initiated order actions by result"},
		[]string{"action", "result"},
	)

	PushEventsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "rider_agent", Name: "push_events_total", Help: "Order events received over the push channel"})
)
