package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DetectionConfig is the optional YAML overlay for detection tuning.
// Fields left empty keep the built-in defaults.
//
// Example:
//
//	keywords: [urgent, otp, kyc, lottery]
//	followups:
//	  payment:
//	    - what is this fee for
//	    - where do i send it
//	thresholds:
//	  keyword_confidence: 0.85
//	  block_confidence: 0.8
//	  high_risk_avg: 0.7
//	  increasing_delta: 0.15
type DetectionConfig struct {
	Keywords   []string            `yaml:"keywords"`
	Followups  map[string][]string `yaml:"followups"`
	Thresholds struct {
		KeywordConfidence float64 `yaml:"keyword_confidence"`
		BlockConfidence   float64 `yaml:"block_confidence"`
		HighRiskAvg       float64 `yaml:"high_risk_avg"`
		IncreasingDelta   float64 `yaml:"increasing_delta"`
	} `yaml:"thresholds"`
}

// LoadDetectionConfig reads and parses the YAML overlay at path.
func LoadDetectionConfig(path string) (*DetectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read detection config: %w", err)
	}

	var dc DetectionConfig
	if err := yaml.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("parse detection config: %w", err)
	}
	return &dc, nil
}

// Apply overlays the parsed thresholds onto cfg. Keyword and follow-up
// lists are consumed directly by the classifier and agent constructors.
func (dc *DetectionConfig) Apply(cfg *Config) {
	if dc.Thresholds.KeywordConfidence > 0 {
		cfg.KeywordConfidence = dc.Thresholds.KeywordConfidence
	}
	if dc.Thresholds.BlockConfidence > 0 {
		cfg.BlockConfidence = dc.Thresholds.BlockConfidence
	}
	if dc.Thresholds.HighRiskAvg > 0 {
		cfg.HighRiskAvg = dc.Thresholds.HighRiskAvg
	}
	if dc.Thresholds.IncreasingDelta > 0 {
		cfg.IncreasingDelta = dc.Thresholds.IncreasingDelta
	}
}
