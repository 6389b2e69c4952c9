package detect

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name       string  `yaml:"name" json:"name"`
	EntityType string  `yaml:"entity_type" json:"entity_type"`
	Pattern    string  `yaml:"pattern" json:"pattern"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Enabled    bool    `yaml:"enabled" json:"enabled"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no detection rules configured")
	}

	return cfg, nil
}

func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "SSN", EntityType: "US_SSN", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Confidence: 0.95, Enabled: true},
		{Name: "Email", EntityType: "EMAIL_ADDRESS", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Confidence: 0.9, Enabled: true},
		{Name: "Phone", EntityType: "PHONE_NUMBER", Pattern: `\b\d{3}-\d{3}-\d{4}\b|\(\d{3}\)\s?\d{3}-\d{4}`, Confidence: 0.85, Enabled: true},
		{Name: "CreditCard", EntityType: "CREDIT_CARD", Pattern: `\b(?:\d[ -]?){13,16}\b`, Confidence: 0.7, Enabled: true},
		{Name: "Date", EntityType: "DATE_TIME", Pattern: `\b\d{1,2}/\d{1,2}/\d{4}\b|\b\d{4}-\d{2}-\d{2}\b`, Confidence: 0.6, Enabled: true},
		{Name: "IPAddress", EntityType: "IP_ADDRESS", Pattern: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Confidence: 0.8, Enabled: true},
		// Go regexps have no lookbehind; the capture group isolates the name
		// and the detector reports only that group as the span.
		{Name: "Person", EntityType: "PERSON", Pattern: `\b(?:Mr\.|Mrs\.|Ms\.|Dr\.|Mx\.|Patient)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`, Confidence: 0.65, Enabled: true},
	}}
}
