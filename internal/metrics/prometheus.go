package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bus metrics
	BusEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"domain", "backend"},
	)

	BusEventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_events_delivered_total",
			Help: "Total number of successful handler deliveries",
		},
		[]string{"topic"},
	)

	BusHandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_handler_errors_total",
			Help: "Total number of handler failures during delivery",
		},
		[]string{"topic"},
	)

	BusRequestTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_request_timeouts_total",
			Help: "Total number of request/reply timeouts",
		},
		[]string{"topic"},
	)

	BusRedeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_redeliveries_total",
			Help: "Total number of durable-backend redeliveries",
		},
		[]string{"stream"},
	)

	BusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_bus_dropped_total",
			Help: "Total number of messages dropped after exhausting max deliveries",
		},
		[]string{"stream"},
	)

	// Risk metrics
	OrdersChecked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_risk_orders_checked_total",
			Help: "Total number of order risk checks",
		},
		[]string{"portfolio", "result"}, // result: allowed|blocked
	)

	OrdersBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_risk_orders_blocked_total",
			Help: "Total number of blocked orders by reason",
		},
		[]string{"portfolio", "reason"},
	)

	RiskScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_risk_score",
			Help: "Current composite risk score (0-100)",
		},
		[]string{"portfolio"},
	)

	RiskWarnings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_risk_warnings_unacknowledged",
			Help: "Current number of unacknowledged risk warnings",
		},
		[]string{"portfolio"},
	)

	// Portfolio metrics
	PortfolioEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_portfolio_equity_usd",
			Help: "Current portfolio equity in USD",
		},
		[]string{"portfolio"},
	)

	PortfolioDrawdown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_portfolio_drawdown_percent",
			Help: "Current drawdown as percent of peak equity",
		},
		[]string{"portfolio"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hermes_positions_open_count",
			Help: "Current number of open positions",
		},
		[]string{"portfolio"},
	)

	// Kafka mirror metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_kafka_messages_total",
			Help: "Total events mirrored to Kafka",
		},
		[]string{"topic", "status"}, // status: success|error
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(BusEventsPublished)
	prometheus.MustRegister(BusEventsDelivered)
	prometheus.MustRegister(BusHandlerErrors)
	prometheus.MustRegister(BusRequestTimeouts)
	prometheus.MustRegister(BusRedeliveries)
	prometheus.MustRegister(BusDropped)

	prometheus.MustRegister(OrdersChecked)
	prometheus.MustRegister(OrdersBlocked)
	prometheus.MustRegister(RiskScore)
	prometheus.MustRegister(RiskWarnings)

	prometheus.MustRegister(PortfolioEquity)
	prometheus.MustRegister(PortfolioDrawdown)
	prometheus.MustRegister(PositionsOpen)

	prometheus.MustRegister(KafkaMessages)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on addr. Blocks until the server
// exits; run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
