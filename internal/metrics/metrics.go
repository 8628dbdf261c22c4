package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_sessions",
		Help: "Current number of connected websocket sessions",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_commands_total",
		Help: "Total number of slash commands processed",
	}, []string{"result"})
	MessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of room messages sent",
	})
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_notifier_events_total",
		Help: "Total number of notifier events pushed to sessions",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(ActiveSessions, CommandsTotal, MessagesTotal, EventsTotal)
}
