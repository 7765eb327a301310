package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	AdminActions     prometheus.Counter
	BotConfigFetches prometheus.Counter
	ProviderProbes   prometheus.Counter
	AuthFailures     prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			AdminActions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "panel",
				Name:      "admin_actions_total",
				Help:      "Total mutating admin API requests",
			}),
			BotConfigFetches: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "panel",
				Name:      "bot_config_fetches_total",
				Help:      "Total bot config snapshot fetches",
			}),
			ProviderProbes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "panel",
				Name:      "provider_probes_total",
				Help:      "Total provider connectivity tests",
			}),
			AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "panel",
				Name:      "auth_failures_total",
				Help:      "Total rejected authentication attempts",
			}),
		}
		prometheus.MustRegister(global.AdminActions, global.BotConfigFetches, global.ProviderProbes, global.AuthFailures)
	})
	return global
}
