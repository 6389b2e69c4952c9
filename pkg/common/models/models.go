package models

import "time"

// Detection is a candidate sensitive span reported by a detection engine.
type Detection struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"` // PERSON, US_SSN, EMAIL_ADDRESS, etc.
	Confidence float64 `json:"confidence"`
	Value      string  `json:"value"`
}

// RiskAnalysis is the parsed output of the LLM risk scorer.
type RiskAnalysis struct {
	RiskScore         float64  `json:"risk_score"`
	RiskFactors       []string `json:"risk_factors"`
	RecommendedAction string   `json:"recommended_action"` // allow, alert, purge
	Confidence        float64  `json:"confidence"`
}

// Event is the envelope published to the alert side channel.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // risk-alert, risk-purge
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// RedactRequest is the redaction endpoint payload.
type RedactRequest struct {
	Text   string          `json:"text"`
	Policy *PolicyOverride `json:"policy,omitempty"`
}

// PolicyOverride is a caller-supplied partial policy merged onto a named base.
type PolicyOverride struct {
	Context            string   `json:"context,omitempty"`
	EnabledEntities    []string `json:"enabled_entities,omitempty"`
	DisabledEntities   []string `json:"disabled_entities,omitempty"`
	RestorationAllowed *bool    `json:"restoration_allowed,omitempty"`
	MinConfidence      *float64 `json:"min_confidence,omitempty"`
}

type PolicySummary struct {
	Context            string  `json:"context"`
	RestorationAllowed bool    `json:"restoration_allowed"`
	EntitiesFiltered   int     `json:"entities_filtered"`
	MinConfidence      float64 `json:"min_confidence"`
	Description        string  `json:"description,omitempty"`
}

type RedactResponse struct {
	RequestID        string               `json:"request_id"`
	RedactedText     string               `json:"redacted_text"`
	ConfidenceScores map[string][]float64 `json:"confidence_scores"`
	AuditStatus      string               `json:"audit_status"`
	PolicyApplied    *PolicySummary       `json:"policy_applied,omitempty"`
}

type RestoreRequest struct {
	RedactedText string `json:"redacted_text"`
}

type RestoreResponse struct {
	RequestID      string   `json:"request_id"`
	OriginalText   string   `json:"original_text"`
	TokensRestored int      `json:"tokens_restored"`
	TokensMissing  int      `json:"tokens_missing"`
	Warnings       []string `json:"warnings"`
	Status         string   `json:"status"` // success, partial
	AuditLogged    bool     `json:"audit_logged"`
}

type PolicyRecommendation struct {
	RecommendedContext  string   `json:"recommended_context"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	DetectedDomains     []string `json:"detected_domains"`
	AlternativeContexts []string `json:"alternative_contexts"`
	RiskWarning         string   `json:"risk_warning,omitempty"`
}
