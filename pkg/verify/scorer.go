package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/gateway/httpclient"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable means the risk scorer could not produce a usable score:
// unreachable, timed out, breaker open, or unparsable output. The pipeline
// fails closed for mutation on this error.
var ErrUnavailable = errors.New("verification unavailable")

// Scorer produces a risk analysis for redacted text. Implementations must
// honor the context deadline; the pipeline makes a single attempt per job.
type Scorer interface {
	Score(ctx context.Context, redactedText string) (*models.RiskAnalysis, error)
}

const riskPrompt = `You are a Privacy Security Auditor. Analyze the redacted text below and assign a PII leak risk score.

PII includes: Names, Emails, SSNs, Phone Numbers, Addresses, ID numbers, Dates of Birth.

Text to analyze: "%s"

Evaluate risk on a scale of 0.0 to 1.0:
- 0.0-0.3: Low risk (all PII properly redacted)
- 0.3-0.5: Medium risk (minor issues, contextual clues)
- 0.5-0.7: High risk (partial PII visible, format preservation)
- 0.7-1.0: Critical risk (clear PII leakage)

Return ONLY a JSON object with:
"risk_score": 0.0 to 1.0,
"risk_factors": ["list", "of", "specific", "risks"],
"recommended_action": "allow" or "alert" or "purge",
"confidence": 0.0 to 1.0
`

const leakPrompt = `You are a Privacy Security Auditor. Your job is to find any UNREDACTED
Personally Identifiable Information (PII) in the text below.

PII includes: Names, Emails, SSNs, Phone Numbers, or ID numbers.

Text to check: "%s"

Return ONLY a JSON object with:
"leaked": true/false,
"reason": "explanation of what was missed"
`

// OllamaScorer calls a local LLM through the Ollama generate API. The call
// runs behind a circuit breaker so a dead LLM degrades to fast failures
// instead of a timeout per request.
type OllamaScorer struct {
	url      string
	model    string
	riskMode bool
	purgeRef float64
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*models.RiskAnalysis]
}

func NewOllamaScorer(url, model string, timeout time.Duration, riskMode bool, thresholds Thresholds) *OllamaScorer {
	settings := gobreaker.Settings{
		Name:    "ollama-risk-scorer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &OllamaScorer{
		url:      url,
		model:    model,
		riskMode: riskMode,
		purgeRef: thresholds.Purge,
		client:   httpclient.New(timeout),
		breaker:  gobreaker.NewCircuitBreaker[*models.RiskAnalysis](settings),
	}
}

func (s *OllamaScorer) Score(ctx context.Context, redactedText string) (*models.RiskAnalysis, error) {
	analysis, err := s.breaker.Execute(func() (*models.RiskAnalysis, error) {
		return s.score(ctx, redactedText)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return analysis, nil
}

func (s *OllamaScorer) score(ctx context.Context, redactedText string) (*models.RiskAnalysis, error) {
	prompt := riskPrompt
	if !s.riskMode {
		prompt = leakPrompt
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model":  s.model,
		"prompt": fmt.Sprintf(prompt, redactedText),
		"stream": false,
		"format": "json",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("scorer envelope malformed: %w", err)
	}

	if s.riskMode {
		return ParseRiskResponse(envelope.Response)
	}
	return s.parseLeakResponse(envelope.Response)
}

var (
	jsonFenceOpen  = regexp.MustCompile("^```json\\s*")
	jsonFenceClose = regexp.MustCompile("\\s*```$")
)

// stripFences removes the markdown code fences some models wrap JSON in.
func stripFences(raw string) string {
	clean := strings.TrimSpace(raw)
	clean = jsonFenceOpen.ReplaceAllString(clean, "")
	clean = jsonFenceClose.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}

// ParseRiskResponse parses a risk-mode LLM reply, tolerating fence wrappers.
func ParseRiskResponse(raw string) (*models.RiskAnalysis, error) {
	var analysis models.RiskAnalysis
	if err := json.Unmarshal([]byte(stripFences(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("risk response malformed: %w", err)
	}
	if analysis.RiskScore < 0 || analysis.RiskScore > 1 {
		return nil, fmt.Errorf("risk score %v out of range", analysis.RiskScore)
	}
	return &analysis, nil
}

// parseLeakResponse maps the boolean-mode reply onto a score: a confirmed
// leak lands exactly on the purge threshold, a clean pass scores zero.
func (s *OllamaScorer) parseLeakResponse(raw string) (*models.RiskAnalysis, error) {
	var verdict struct {
		Leaked bool   `json:"leaked"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &verdict); err != nil {
		return nil, fmt.Errorf("leak response malformed: %w", err)
	}

	analysis := &models.RiskAnalysis{RecommendedAction: string(TierAllow), Confidence: 1}
	if verdict.Leaked {
		analysis.RiskScore = s.purgeRef
		analysis.RiskFactors = []string{verdict.Reason}
		analysis.RecommendedAction = string(TierPurge)
	}
	return analysis, nil
}
