package v1alpha1

import (
	"encoding/json"
	"fmt"
	"os"

	yaml "sigs.k8s.io/yaml/goyaml.v3"
)

// Manifest is the Kubernetes-style envelope of a stage declaration.
type Manifest struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Spec       SetWindowFields `json:"spec"`
}

// Parse parses a stage declaration from JSON or YAML. Three forms are accepted: a manifest
// with apiVersion "windowfields.l7mp.io/v1alpha1" and kind "SetWindowFields", a pipeline stage
// of the form {"$setWindowFields": {...}}, and the bare stage arguments. The key order of a
// multi-field sortBy object is kept only for JSON input.
func Parse(data []byte) (*SetWindowFields, error) {
	jsonData := data

	// JSON is valid YAML, but the conversion reorders object keys
	if !json.Valid(data) {
		var err error
		if jsonData, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("failed to parse stage declaration: %w", err)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse stage declaration: %w", err)
	}

	if _, ok := raw["apiVersion"]; ok {
		m := Manifest{}
		if err := json.Unmarshal(jsonData, &m); err != nil {
			return nil, fmt.Errorf("failed to parse stage manifest: %w", err)
		}
		if !IsStageGroupVersionKind(m.APIVersion, m.Kind) {
			return nil, fmt.Errorf("unknown stage manifest %s/%s: expected %s",
				m.APIVersion, m.Kind, GroupVersionKind().String())
		}
		return &m.Spec, nil
	}

	if len(raw) == 1 {
		for _, name := range []string{StageName, "@setWindowFields"} {
			if stage, ok := raw[name]; ok {
				jsonData = stage
			}
		}
	}

	s := SetWindowFields{}
	if err := json.Unmarshal(jsonData, &s); err != nil {
		return nil, fmt.Errorf("failed to parse stage declaration: %w", err)
	}

	return &s, nil
}

// yamlToJSON converts YAML to JSON with YAML 1.2 scalar rules, so keys like "n" or "on" stay
// strings. Mapping keys that are not strings are rejected.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	ret, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mapping keys must be strings: %w", err)
	}

	return ret, nil
}

// ParseFile loads a stage declaration from a file.
func ParseFile(path string) (*SetWindowFields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
