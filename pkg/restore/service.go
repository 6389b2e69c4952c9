package restore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sentinel-ai/gateway/pkg/token"
)

// ErrPolicyForbidden means at least one located token disallows restoration.
// The whole call fails and no text is substituted across that boundary.
var ErrPolicyForbidden = errors.New("restoration forbidden by policy")

// markerPattern matches the rendering produced by the redaction side. The
// token inside stays opaque; only the bracketed format is shared knowledge.
var markerPattern = regexp.MustCompile(`\[REDACTED_([0-9a-f]{16})\]`)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Result reports a restoration outcome. Status is a tri-state: success with
// every token substituted, partial when some tokens had expired or been
// purged, failed only on the error path.
type Result struct {
	RestoredText string
	Restored     int
	Missing      int
	Warnings     []string
	Status       string
}

type Service struct {
	store token.Store
}

func NewService(store token.Store) *Service {
	return &Service{store: store}
}

// Restore scans the text for token markers and substitutes original values.
// A policy-forbidden token fails the whole call before any substitution; a
// missing token (expired or purged) keeps its marker and yields a warning.
func (s *Service) Restore(ctx context.Context, redactedText string) (*Result, error) {
	tokens := distinctTokens(redactedText)

	records := make(map[string]*token.Record, len(tokens))
	for _, tok := range tokens {
		rec, err := s.store.Get(ctx, tok)
		if err != nil {
			return nil, err
		}
		if rec != nil && !rec.RestorationAllowed {
			return nil, fmt.Errorf("%w: context %s", ErrPolicyForbidden, rec.Context)
		}
		records[tok] = rec
	}

	result := &Result{RestoredText: redactedText, Status: StatusSuccess}
	for _, tok := range tokens {
		rec := records[tok]
		marker := "[REDACTED_" + tok + "]"
		if rec == nil {
			result.Missing++
			result.Warnings = append(result.Warnings, fmt.Sprintf("token %s expired or not found", tok))
			continue
		}
		result.RestoredText = strings.ReplaceAll(result.RestoredText, marker, rec.Value)
		result.Restored++
	}

	if result.Missing > 0 {
		result.Status = StatusPartial
	}
	return result, nil
}

func distinctTokens(text string) []string {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, match := range matches {
		tok := match[1]
		if seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}
