package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/gateway/httpclient"
)

const recommendationPrompt = `You are a compliance assistant. Classify the text below into the policy context that best fits it.

Valid contexts: "general", "healthcare", "finance".

Text: "%s"

Return ONLY a JSON object with:
"recommended_context": one of the valid contexts,
"confidence": 0.0 to 1.0,
"reasoning": "why this context fits",
"detected_domains": ["list", "of", "domains"],
"alternative_contexts": ["other", "plausible", "contexts"],
"risk_warning": "warning when PII from multiple domains is mixed, else empty"
`

// Recommender suggests a policy context for a piece of text. LLM failures
// degrade to a keyword heuristic; Suggest never returns an error.
type Recommender struct {
	url    string
	model  string
	client *http.Client
	valid  map[string]bool
}

func NewRecommender(url, model string, timeout time.Duration) *Recommender {
	return &Recommender{
		url:    url,
		model:  model,
		client: httpclient.New(timeout),
		valid:  map[string]bool{"general": true, "healthcare": true, "finance": true},
	}
}

func (r *Recommender) Suggest(ctx context.Context, text string) *models.PolicyRecommendation {
	rec, err := r.ask(ctx, text)
	if err != nil {
		logger.Log.WithError(err).Debug("LLM policy recommendation unavailable, using keyword fallback")
		return keywordFallback(text, err)
	}
	return rec
}

func (r *Recommender) ask(ctx context.Context, text string) (*models.PolicyRecommendation, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model":  r.model,
		"prompt": fmt.Sprintf(recommendationPrompt, text),
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recommender returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}

	var rec models.PolicyRecommendation
	clean := strings.TrimSpace(envelope.Response)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimSuffix(clean, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &rec); err != nil {
		return nil, fmt.Errorf("recommendation malformed: %w", err)
	}

	if !r.valid[rec.RecommendedContext] {
		return nil, fmt.Errorf("invalid recommended context %q", rec.RecommendedContext)
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", rec.Confidence)
	}
	return &rec, nil
}

var (
	healthcareKeywords = []string{"patient", "doctor", "hospital", "medical", "diagnosis", "treatment", "phi", "hipaa"}
	financeKeywords    = []string{"credit card", "payment", "transaction", "account", "bank", "financial", "pci", "invoice"}
)

func keywordFallback(text string, cause error) *models.PolicyRecommendation {
	lower := strings.ToLower(text)

	healthcareHits := countHits(lower, healthcareKeywords)
	financeHits := countHits(lower, financeKeywords)

	note := ""
	if cause != nil {
		note = fmt.Sprintf(" (LLM unavailable: %v)", cause)
	}

	switch {
	case healthcareHits > financeHits && healthcareHits >= 2:
		return &models.PolicyRecommendation{
			RecommendedContext: "healthcare",
			Confidence:         minFloat(0.7, 0.5+float64(healthcareHits)*0.1),
			Reasoning:          "Keyword-based fallback detected healthcare terms" + note,
			DetectedDomains:    []string{"healthcare"},
		}
	case financeHits > healthcareHits && financeHits >= 2:
		return &models.PolicyRecommendation{
			RecommendedContext: "finance",
			Confidence:         minFloat(0.7, 0.5+float64(financeHits)*0.1),
			Reasoning:          "Keyword-based fallback detected finance terms" + note,
			DetectedDomains:    []string{"finance"},
		}
	default:
		return &models.PolicyRecommendation{
			RecommendedContext: "general",
			Confidence:         0.6,
			Reasoning:          "No clear domain detected, using default general policy" + note,
			DetectedDomains:    []string{"general"},
		}
	}
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
