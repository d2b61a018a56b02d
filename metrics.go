package pollchat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded by the sync and presence pollers.
const (
	resultAppended  = "appended"
	resultEmpty     = "empty"
	resultFailed    = "failed"
	resultDiscarded = "discarded"
	resultOK        = "ok"
)

type metrics struct {
	syncFetches   *prometheus.CounterVec
	syncAppended  prometheus.Counter
	presencePolls *prometheus.CounterVec
	sends         *prometheus.CounterVec
	gatewayErrors *prometheus.CounterVec
}

// newMetrics builds the client's collectors. A nil registerer leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		syncFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollchat",
			Subsystem: "sync",
			Name:      "fetches_total",
			Help:      "Message fetches by outcome.",
		}, []string{"result"}),
		syncAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pollchat",
			Subsystem: "sync",
			Name:      "messages_appended_total",
			Help:      "Messages appended to the open conversation's log.",
		}),
		presencePolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollchat",
			Subsystem: "presence",
			Name:      "polls_total",
			Help:      "Online-user fetches by outcome.",
		}, []string{"result"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollchat",
			Name:      "sends_total",
			Help:      "Outgoing messages by outcome.",
		}, []string{"result"}),
		gatewayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollchat",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Failed store calls by error code.",
		}, []string{"code"}),
	}
}
