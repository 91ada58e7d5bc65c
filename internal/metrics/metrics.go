// Package metrics declares the Prometheus collectors for memereact. They are
// registered with the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message handling.
var (
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_messages_total",
		Help: "Inbound chat messages processed",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memereact_commands_total",
		Help: "Chat commands dispatched, by command and outcome",
	}, []string{"command", "outcome"})

	MatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memereact_matches_total",
		Help: "Messages that selected a meme, by match kind",
	}, []string{"kind"})

	PostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memereact_posts_total",
		Help: "Memes posted, by post kind",
	}, []string{"kind"})

	PostsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_posts_skipped_total",
		Help: "Selected memes the posting policy declined to post",
	})

	PostFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_post_failures_total",
		Help: "Posts the chat transport failed to deliver",
	})
)

// Feedback.
var (
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memereact_reactions_total",
		Help: "Reaction events, by outcome (applied, unscored, unresolved)",
	}, []string{"outcome"})

	TrackerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memereact_tracker_posts",
		Help: "Posts currently held for feedback attribution",
	})
)

// Catalog and persistence.
var (
	CatalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memereact_catalog_entries",
		Help: "Entries in the catalog in service",
	})

	CatalogReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_catalog_reloads_total",
		Help: "Catalog rebuilds swapped into service",
	})

	SnapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_weight_snapshot_saves_total",
		Help: "Successful weight snapshot saves",
	})

	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memereact_weight_snapshot_failures_total",
		Help: "Failed weight snapshot save attempts",
	})
)
