package verify

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/observability/metrics"
	"github.com/sentinel-ai/gateway/pkg/token"
)

// Job is one redaction's worth of verification work. Batch scopes any purge
// to exactly the tokens that redaction created.
type Job struct {
	RequestID    string
	RedactedText string
	Batch        []string
}

// AlertPublisher is the side channel for the alert and purge tiers. The
// Kafka producer satisfies it; tests swap in a recorder.
type AlertPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Pipeline runs risk verification out-of-band after a redaction response has
// already been returned. Nothing here can block or fail a caller: jobs ride a
// bounded queue, a full queue drops to the log path, and scorer failures are
// fail-closed for mutation (no purge without evidence, single attempt, no
// retries).
//
// A restoration that completes between token creation and a purge decision
// stands; the guarantee is eventually-more-conservative, not immediately
// safe.
type Pipeline struct {
	scorer     Scorer
	store      token.Store
	alerts     AlertPublisher
	thresholds Thresholds
	timeout    time.Duration

	jobs chan Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPipeline(scorer Scorer, store token.Store, alerts AlertPublisher, thresholds Thresholds, timeout time.Duration, workers, queueSize int) (*Pipeline, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	p := &Pipeline{
		scorer:     scorer,
		store:      store,
		alerts:     alerts,
		thresholds: thresholds,
		timeout:    timeout,
		jobs:       make(chan Job, queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

// Enqueue hands a job to the background workers and never blocks. When the
// queue is full the job is recorded on the dead-letter log path and dropped.
func (p *Pipeline) Enqueue(job Job) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.jobs <- job:
	default:
		metrics.VerificationDropped.Inc()
		logger.Log.WithFields(map[string]interface{}{
			"request_id": job.RequestID,
			"batch_size": len(job.Batch),
		}).Warn("Verification queue full, job dropped")
	}
}

// Stop drains queued jobs and waits for in-flight work to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.process(job)
	}
}

func (p *Pipeline) process(job Job) {
	scoreCtx, cancelScore := context.WithTimeout(context.Background(), p.timeout)
	analysis, err := p.scorer.Score(scoreCtx, job.RedactedText)
	cancelScore()
	if err != nil {
		// Fail closed for mutation: no evidence, no purge.
		metrics.VerificationFailures.Inc()
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"request_id": job.RequestID,
			"batch_size": len(job.Batch),
		}).Error("Risk verification failed, no action taken")
		return
	}

	tier := p.thresholds.TierFor(analysis.RiskScore)
	metrics.VerificationActions.WithLabelValues(string(tier)).Inc()

	// Purge and publish run on their own budget. A scorer that spends the
	// whole deadline before verdicting must not starve the store deletes.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	fields := map[string]interface{}{
		"request_id":   job.RequestID,
		"risk_score":   analysis.RiskScore,
		"tier":         string(tier),
		"risk_factors": analysis.RiskFactors,
	}

	switch tier {
	case TierAllow:
		logger.Log.WithFields(fields).Debug("Verification passed")

	case TierLog:
		logger.Log.WithFields(fields).Warn("Elevated risk recorded for investigation")

	case TierAlert:
		metrics.LeaksFound.Inc()
		logger.Log.WithFields(fields).Warn("SECURITY ALERT: elevated leak risk, tokens retained")
		p.publish(ctx, "risk-alert", job, analysis.RiskScore, analysis.RiskFactors)

	case TierPurge:
		metrics.LeaksFound.Inc()
		logger.Log.WithFields(fields).Warn("SECURITY ALERT: critical leak risk, purging batch")
		p.purge(ctx, job)
		p.publish(ctx, "risk-purge", job, analysis.RiskScore, analysis.RiskFactors)
	}
}

// purge deletes every token in the job's batch. Deleted tokens are
// permanently unrestorable even if a caller still holds the redacted text.
func (p *Pipeline) purge(ctx context.Context, job Job) {
	purged := 0
	for _, tok := range job.Batch {
		removed, err := p.store.Delete(ctx, tok)
		if err != nil {
			logger.Log.WithError(err).WithField("token", tok).Error("Failed to purge token")
			continue
		}
		if removed {
			purged++
			metrics.TokensPurged.Inc()
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"request_id": job.RequestID,
		"purged":     purged,
		"batch_size": len(job.Batch),
	}).Info("Token batch purged")
}

func (p *Pipeline) publish(ctx context.Context, eventType string, job Job, score float64, factors []string) {
	if p.alerts == nil {
		return
	}
	err := p.alerts.PublishEvent(ctx, eventType, "verification-pipeline", map[string]interface{}{
		"request_id":   job.RequestID,
		"risk_score":   score,
		"risk_factors": factors,
		"batch_size":   len(job.Batch),
	})
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to publish risk event")
	}
}
