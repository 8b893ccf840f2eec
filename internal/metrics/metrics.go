// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bili_bot_poll_cycles_total",
		Help: "Number of completed poll cycles",
	})
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bili_bot_poll_duration_seconds",
		Help:    "Duration of a full poll cycle",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	SubscriptionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bili_bot_subscription_errors_total",
		Help: "Per-subscription poll failures by stage",
	}, []string{"stage"})
	ItemsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bili_bot_items_filtered_total",
		Help: "Feed items skipped by a filter while still advancing the cursor",
	})
	LiveTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bili_bot_live_transitions_total",
		Help: "Detected live state changes",
	}, []string{"transition"})
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bili_bot_messages_sent_total",
		Help: "Messages handed to the chat transport by kind (image, text)",
	}, []string{"kind"})
	RenderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bili_bot_render_failures_total",
		Help: "Renders that failed after all attempts",
	})
)
