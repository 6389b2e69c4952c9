package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_redactions_total",
		Help: "Number of redaction requests processed.",
	})

	ConfidenceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_detection_confidence_scores",
		Help:    "Distribution of detection confidence scores.",
		Buckets: []float64{0, 0.5, 0.7, 0.8, 0.9, 1.0},
	})

	TokensCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_tokens_created_total",
		Help: "Number of tokens written to the token store.",
	})

	VerificationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_verification_actions_total",
		Help: "Verification outcomes by risk tier.",
	}, []string{"tier"})

	VerificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_verification_failures_total",
		Help: "Background verifications that failed before producing a score.",
	})

	VerificationDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_verification_dropped_total",
		Help: "Verification jobs dropped because the queue was full.",
	})

	LeaksFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_auditor_leaks_found_total",
		Help: "Number of residual PII leaks flagged by the LLM auditor.",
	})

	TokensPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_tokens_purged_total",
		Help: "Tokens deleted by the purge tier.",
	})

	RestorationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_restorations_total",
		Help: "Restoration attempts by outcome status.",
	}, []string{"status"})
)
