package redact

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/detect"
	"github.com/sentinel-ai/gateway/pkg/policy"
	"github.com/sentinel-ai/gateway/pkg/token"
)

var markerRe = regexp.MustCompile(`\[REDACTED_([0-9a-f]{16})\]`)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *token.MemoryStore) {
	t.Helper()
	detector, err := detect.NewRegexDetector(detect.DefaultRules())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	store := token.NewMemoryStore()
	return NewOrchestrator(detector, store, time.Hour), store
}

func healthcarePolicy(t *testing.T) policy.Policy {
	t.Helper()
	p, err := policy.NewEngine().Resolve("healthcare", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return p
}

func TestRedactHealthcareScenario(t *testing.T) {
	orch, store := newTestOrchestrator(t)
	pol := healthcarePolicy(t)

	result, err := orch.Redact(context.Background(), "Patient John Doe, SSN: 123-45-6789", pol)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	markers := markerRe.FindAllStringSubmatch(result.RedactedText, -1)
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d in %q", len(markers), result.RedactedText)
	}
	if strings.Contains(result.RedactedText, "John Doe") || strings.Contains(result.RedactedText, "123-45-6789") {
		t.Fatalf("sensitive values leaked: %q", result.RedactedText)
	}
	if result.Policy.RestorationAllowed {
		t.Fatal("healthcare policy must forbid restoration")
	}
	if len(result.Batch) != 2 {
		t.Fatalf("expected batch of 2, got %v", result.Batch)
	}

	for _, tok := range result.Batch {
		rec, err := store.Get(context.Background(), tok)
		if err != nil || rec == nil {
			t.Fatalf("token %s missing from store: %v", tok, err)
		}
		if rec.Context != "healthcare" || rec.RestorationAllowed {
			t.Fatalf("token record carries wrong policy metadata: %+v", rec)
		}
	}
}

func TestRedactFilteredEntitiesStayPlain(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	// Policy that only keeps SSNs; the email must survive untouched.
	pol := policy.Policy{Context: "test", EnabledEntities: []string{"US_SSN"}, MinConfidence: 0.5}

	text := "SSN 123-45-6789 and email jane@example.com"
	result, err := orch.Redact(context.Background(), text, pol)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	if !strings.Contains(result.RedactedText, "jane@example.com") {
		t.Fatalf("filtered-out entity was redacted: %q", result.RedactedText)
	}
	if strings.Contains(result.RedactedText, "123-45-6789") {
		t.Fatalf("enabled entity was not redacted: %q", result.RedactedText)
	}
	if len(result.Batch) != 1 {
		t.Fatalf("expected exactly one token, got %v", result.Batch)
	}
	if scores := result.Scores["US_SSN"]; len(scores) != 1 || scores[0] < pol.MinConfidence {
		t.Fatalf("unexpected score map: %v", result.Scores)
	}
}

func TestRedactNoDetections(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	pol := policy.Policy{Context: "test"}

	text := "nothing sensitive here"
	result, err := orch.Redact(context.Background(), text, pol)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if result.RedactedText != text {
		t.Fatalf("text changed without detections: %q", result.RedactedText)
	}
	if len(result.Batch) != 0 {
		t.Fatalf("expected empty batch, got %v", result.Batch)
	}
}

type fixedDetector struct {
	detections []models.Detection
}

func (d fixedDetector) Detect(_ context.Context, _ string) ([]models.Detection, error) {
	return d.detections, nil
}

func TestRedactRejectsInvalidDetectorSpans(t *testing.T) {
	store := token.NewMemoryStore()
	pol := policy.Policy{Context: "test"}

	cases := []struct {
		name string
		det  models.Detection
	}{
		{"end past input", models.Detection{Start: 2, End: 999, EntityType: "EMAIL_ADDRESS", Confidence: 0.9}},
		{"negative start", models.Detection{Start: -1, End: 4, EntityType: "EMAIL_ADDRESS", Confidence: 0.9}},
		{"inverted span", models.Detection{Start: 6, End: 3, EntityType: "EMAIL_ADDRESS", Confidence: 0.9}},
		{"value mismatch", models.Detection{Start: 0, End: 4, Value: "zzzz", EntityType: "EMAIL_ADDRESS", Confidence: 0.9}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orch := NewOrchestrator(fixedDetector{detections: []models.Detection{tc.det}}, store, time.Hour)

			result, err := orch.Redact(context.Background(), "short text", pol)
			if err == nil {
				t.Fatalf("expected error for %s, got result %+v", tc.name, result)
			}
			if len(store.Tokens()) != 0 {
				t.Fatalf("no tokens may be minted for rejected spans, store has %v", store.Tokens())
			}
		})
	}
}

func TestTokenUniquenessAcrossConcurrentRedactions(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	pol := policy.Policy{Context: "test", MinConfidence: 0.5}

	const goroutines = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := orch.Redact(context.Background(), "SSN 123-45-6789 mail a@b.io", pol)
			if err != nil {
				t.Errorf("redact: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, tok := range result.Batch {
				if seen[tok] {
					t.Errorf("duplicate live token %s", tok)
				}
				seen[tok] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*2 {
		t.Fatalf("expected %d distinct tokens, got %d", goroutines*2, len(seen))
	}
}
