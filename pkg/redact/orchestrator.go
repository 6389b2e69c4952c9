package redact

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/detect"
	"github.com/sentinel-ai/gateway/pkg/observability/metrics"
	"github.com/sentinel-ai/gateway/pkg/policy"
	"github.com/sentinel-ai/gateway/pkg/token"
)

// Marker format for a redacted span. The token inside is store-opaque; the
// bracketed rendering is only a text-level convention shared with restore.
const markerFormat = "[REDACTED_%s]"

// Result is what a single redaction call produced. Batch lists the tokens
// created by this call and is the unit of scope for a later purge.
type Result struct {
	RedactedText string
	Scores       map[string][]float64
	Batch        []string
	Policy       policy.Policy
}

type Orchestrator struct {
	detector detect.Detector
	store    token.Store
	ttl      time.Duration
}

func NewOrchestrator(detector detect.Detector, store token.Store, ttl time.Duration) *Orchestrator {
	return &Orchestrator{detector: detector, store: store, ttl: ttl}
}

// Redact detects sensitive spans, filters them through the resolved policy,
// and replaces each surviving span with a freshly minted token marker.
// Filtered-out detections are never tokenized and stay as plain text.
func (o *Orchestrator) Redact(ctx context.Context, text string, pol policy.Policy) (*Result, error) {
	detections, err := o.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	if err := validateSpans(text, detections); err != nil {
		return nil, err
	}

	kept := policy.Filter(detections, pol)
	kept = dedupeSpans(kept)

	scores := make(map[string][]float64)
	batch := make([]string, 0, len(kept))

	// Replace right to left so earlier span offsets stay valid.
	redacted := text
	for i := len(kept) - 1; i >= 0; i-- {
		det := kept[i]
		if det.Value == "" {
			det.Value = text[det.Start:det.End]
		}

		tok, err := o.mintToken(ctx, det, pol)
		if err != nil {
			return nil, err
		}

		batch = append(batch, tok)
		scores[det.EntityType] = append(scores[det.EntityType], det.Confidence)
		redacted = redacted[:det.Start] + fmt.Sprintf(markerFormat, tok) + redacted[det.End:]
	}

	return &Result{
		RedactedText: redacted,
		Scores:       scores,
		Batch:        batch,
		Policy:       pol,
	}, nil
}

// mintToken draws random 16-hex-char values until one claims its store key.
// The address space makes a second draw vanishingly rare, but the loop is
// what guarantees uniqueness, not the odds.
func (o *Orchestrator) mintToken(ctx context.Context, det models.Detection, pol policy.Policy) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		tok, err := newTokenID()
		if err != nil {
			return "", err
		}

		rec := token.Record{
			Token:              tok,
			Value:              det.Value,
			EntityType:         det.EntityType,
			Confidence:         det.Confidence,
			Context:            pol.Context,
			RestorationAllowed: pol.RestorationAllowed,
			CreatedAt:          time.Now().UTC(),
		}

		err = o.store.Create(ctx, rec, o.ttl)
		if err == nil {
			metrics.TokensCreated.Inc()
			return tok, nil
		}
		if errors.Is(err, token.ErrTokenExists) {
			continue
		}
		return "", err
	}
}

func newTokenID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// validateSpans rejects detector output that does not address the input:
// offsets outside the text, or a reported value disagreeing with the span it
// claims to cover. The detector may live across a network boundary, so its
// spans are untrusted until checked.
func validateSpans(text string, detections []models.Detection) error {
	for _, det := range detections {
		if det.Start < 0 || det.End < det.Start || det.End > len(text) {
			return fmt.Errorf("detector returned invalid span [%d:%d) for %d-byte input", det.Start, det.End, len(text))
		}
		if det.Value != "" && det.Value != text[det.Start:det.End] {
			return fmt.Errorf("detector span [%d:%d) does not match its reported value", det.Start, det.End)
		}
	}
	return nil
}

// dedupeSpans sorts detections by position and drops spans overlapping an
// already accepted one, preferring the longer span on equal starts.
func dedupeSpans(detections []models.Detection) []models.Detection {
	if len(detections) <= 1 {
		return detections
	}

	sorted := append([]models.Detection(nil), detections...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	out := sorted[:0]
	lastEnd := -1
	for _, det := range sorted {
		if det.Start < lastEnd {
			continue
		}
		out = append(out, det)
		lastEnd = det.End
	}
	return out
}
