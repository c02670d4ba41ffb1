package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	OrdersCreated prometheus.Counter
}

// New builds and registers the service collectors. Pass
// prometheus.DefaultRegisterer in main; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		}),
	}
	reg.MustRegister(m.OrdersCreated)
	return m
}
