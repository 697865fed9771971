// Package config loads the optional run-config file. Both YAML and JSON
// are accepted; the format is picked by extension, falling back to
// content sniffing.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Run mirrors the `run` command flags plus gate overrides. Zero values
// mean "not set"; flags and defaults win over absent keys.
type Run struct {
	Dataset        string             `yaml:"dataset" json:"dataset"`
	Provider       string             `yaml:"provider" json:"provider"`
	Model          string             `yaml:"model" json:"model"`
	BaseURL        string             `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int                `yaml:"timeout_seconds" json:"timeout_seconds"`
	Temperature    float64            `yaml:"temperature" json:"temperature"`
	NumPredict     int                `yaml:"num_predict" json:"num_predict"`
	NumCtx         int                `yaml:"num_ctx" json:"num_ctx"`
	JSONMode       bool               `yaml:"json_mode" json:"json_mode"`
	Parallel       int                `yaml:"parallel" json:"parallel"`
	OutResults     string             `yaml:"out_results" json:"out_results"`
	OutEvents      string             `yaml:"out_events" json:"out_events"`
	Gates          map[string]float64 `yaml:"gates" json:"gates"`
}

// Load reads a run config from path.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Run
	if isJSON(path, data) {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func isJSON(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return true
	case ".yaml", ".yml":
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}
