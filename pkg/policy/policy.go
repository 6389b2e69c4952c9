package policy

import (
	"errors"
	"fmt"

	"github.com/sentinel-ai/gateway/pkg/common/models"
)

var (
	ErrUnknownContext   = errors.New("unknown policy context")
	ErrDuplicateContext = errors.New("policy context already registered")
)

// Policy is an immutable redaction policy value. Compliance marks contexts
// whose restoration permission cannot be overridden by callers.
type Policy struct {
	Context            string   `yaml:"context" json:"context"`
	EnabledEntities    []string `yaml:"enabled_entities" json:"enabled_entities"`
	DisabledEntities   []string `yaml:"disabled_entities" json:"disabled_entities"`
	RestorationAllowed bool     `yaml:"restoration_allowed" json:"restoration_allowed"`
	MinConfidence      float64  `yaml:"min_confidence" json:"min_confidence"`
	Compliance         bool     `yaml:"compliance" json:"compliance"`
	Description        string   `yaml:"description" json:"description,omitempty"`
}

// EntityAllowed reports whether the policy keeps detections of the given type.
// An empty enabled set allows every type; the disabled set always wins.
func (p Policy) EntityAllowed(entityType string) bool {
	for _, disabled := range p.DisabledEntities {
		if disabled == entityType {
			return false
		}
	}
	if len(p.EnabledEntities) == 0 {
		return true
	}
	for _, enabled := range p.EnabledEntities {
		if enabled == entityType {
			return true
		}
	}
	return false
}

// MeetsConfidence reports whether a detection score clears the policy floor.
func (p Policy) MeetsConfidence(score float64) bool {
	return score >= p.MinConfidence
}

func (p Policy) clone() Policy {
	out := p
	out.EnabledEntities = append([]string(nil), p.EnabledEntities...)
	out.DisabledEntities = append([]string(nil), p.DisabledEntities...)
	return out
}

func defaultPolicies() map[string]Policy {
	return map[string]Policy{
		"general": {
			Context: "general",
			EnabledEntities: []string{
				"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "US_SSN",
				"CREDIT_CARD", "IP_ADDRESS", "LOCATION", "DATE_TIME",
			},
			RestorationAllowed: false,
			MinConfidence:      0.35,
			Description:        "Default policy for general-purpose text",
		},
		"healthcare": {
			Context: "healthcare",
			EnabledEntities: []string{
				"PERSON", "PHONE_NUMBER", "EMAIL_ADDRESS", "US_SSN",
				"DATE_TIME", "LOCATION", "IP_ADDRESS",
			},
			RestorationAllowed: false,
			MinConfidence:      0.5,
			Compliance:         true,
			Description:        "HIPAA-aligned policy for clinical text",
		},
		"finance": {
			Context: "finance",
			EnabledEntities: []string{
				"PERSON", "US_SSN", "CREDIT_CARD", "IBAN_CODE",
				"PHONE_NUMBER", "EMAIL_ADDRESS", "US_BANK_NUMBER", "US_DRIVER_LICENSE",
			},
			RestorationAllowed: false,
			MinConfidence:      0.6,
			Compliance:         true,
			Description:        "PCI/GLBA-aligned policy for financial text",
		},
	}
}

// Filter keeps a detection iff its entity type passes the policy's entity
// sets and its confidence clears the threshold. Items are independent.
func Filter(detections []models.Detection, p Policy) []models.Detection {
	kept := make([]models.Detection, 0, len(detections))
	for _, det := range detections {
		if !p.EntityAllowed(det.EntityType) {
			continue
		}
		if !p.MeetsConfidence(det.Confidence) {
			continue
		}
		kept = append(kept, det)
	}
	return kept
}

// Summary builds the response metadata for an applied policy.
func (p Policy) Summary() *models.PolicySummary {
	return &models.PolicySummary{
		Context:            p.Context,
		RestorationAllowed: p.RestorationAllowed,
		EntitiesFiltered:   len(p.EnabledEntities),
		MinConfidence:      p.MinConfidence,
		Description:        p.Description,
	}
}

func validate(p Policy) error {
	if p.Context == "" {
		return fmt.Errorf("policy context must not be empty")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("policy %s: min_confidence %v out of range", p.Context, p.MinConfidence)
	}
	return nil
}
