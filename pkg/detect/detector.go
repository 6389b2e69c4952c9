package detect

import (
	"context"
	"regexp"

	"github.com/sentinel-ai/gateway/pkg/common/models"
)

// Detector finds candidate sensitive spans in text. Implementations must be
// deterministic for a given rule set or model version.
type Detector interface {
	Detect(ctx context.Context, text string) ([]models.Detection, error)
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// RegexDetector is the built-in rule-based detector.
type RegexDetector struct {
	rules []compiledRule
}

func NewRegexDetector(cfg RulesConfig) (*RegexDetector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &RegexDetector{rules: compiled}, nil
}

func (d *RegexDetector) Detect(_ context.Context, text string) ([]models.Detection, error) {
	if d == nil {
		return nil, nil
	}

	var detections []models.Detection
	for _, rule := range d.rules {
		matches := rule.re.FindAllStringSubmatchIndex(text, -1)
		for _, match := range matches {
			start, end := match[0], match[1]
			// A rule with a capture group reports only that group.
			if rule.re.NumSubexp() > 0 && len(match) >= 4 && match[2] >= 0 {
				start, end = match[2], match[3]
			}
			detections = append(detections, models.Detection{
				Start:      start,
				End:        end,
				EntityType: rule.rule.EntityType,
				Confidence: rule.rule.Confidence,
				Value:      text[start:end],
			})
		}
	}

	return detections, nil
}
