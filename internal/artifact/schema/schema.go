// Package schema validates metric and dashboard YAML against the required
// top-level shapes from spec §6, using JSON Schema so the same rules the
// LLM is told about in its tool schema are enforced again at the trust
// boundary before a file is persisted.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const metricSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "dataset_ids", "time_frame", "sql", "chart_config"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"dataset_ids": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"time_frame": {"type": "string"},
		"sql": {"type": "string", "minLength": 1},
		"chart_config": {
			"type": "object",
			"required": ["selected_chart_type", "column_label_formats"],
			"properties": {
				"selected_chart_type": {
					"enum": ["bar", "line", "scatter", "pie", "combo", "metric", "table"]
				},
				"column_label_formats": {"type": "object"}
			}
		}
	}
}`

const dashboardSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["title", "rows"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"rows": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["items"],
				"properties": {
					"items": {
						"type": "array",
						"maxItems": 4,
						"items": {
							"type": "object",
							"required": ["id", "width"],
							"properties": {
								"id": {"type": "string"},
								"width": {"type": "integer", "minimum": 3, "maximum": 12}
							}
						}
					}
				}
			}
		}
	}
}`

var (
	once         sync.Once
	metricSchema *jsonschema.Schema
	dashSchema   *jsonschema.Schema
	compileErr   error
)

func compile() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("metric.json", mustUnmarshal(metricSchemaJSON)); err != nil {
		compileErr = fmt.Errorf("add metric schema resource: %w", err)
		return
	}
	if err := c.AddResource("dashboard.json", mustUnmarshal(dashboardSchemaJSON)); err != nil {
		compileErr = fmt.Errorf("add dashboard schema resource: %w", err)
		return
	}
	var err error
	metricSchema, err = c.Compile("metric.json")
	if err != nil {
		compileErr = fmt.Errorf("compile metric schema: %w", err)
		return
	}
	dashSchema, err = c.Compile("dashboard.json")
	if err != nil {
		compileErr = fmt.Errorf("compile dashboard schema: %w", err)
		return
	}
}

func mustUnmarshal(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic(err)
	}
	return v
}

// ValidateMetricYAML parses ymlContent as YAML and validates its shape
// against the required metric fields from §6.
func ValidateMetricYAML(ymlContent string) error {
	once.Do(compile)
	if compileErr != nil {
		return compileErr
	}
	v, err := yamlToJSONValue(ymlContent)
	if err != nil {
		return err
	}
	return metricSchema.Validate(v)
}

// ValidateDashboardYAML parses ymlContent as YAML and validates its shape
// against the required dashboard fields from §6.
func ValidateDashboardYAML(ymlContent string) error {
	once.Do(compile)
	if compileErr != nil {
		return compileErr
	}
	v, err := yamlToJSONValue(ymlContent)
	if err != nil {
		return err
	}
	return dashSchema.Validate(v)
}

// yamlToJSONValue decodes YAML into the map[string]any/[]any/scalar shape
// jsonschema.Validate expects, going through JSON so yaml.v3's node types
// (and its int/float handling) normalize to what the schema compiler
// produced from its own json.Unmarshal calls above.
func yamlToJSONValue(ymlContent string) (any, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(ymlContent), &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	normalized := normalize(raw)
	buf, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("normalize yaml to json: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode normalized json: %w", err)
	}
	return v, nil
}

// normalize converts YAML's map[any]any nodes into map[string]any so
// encoding/json can marshal them.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalize(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalize(vv)
		}
		return out
	default:
		return val
	}
}
