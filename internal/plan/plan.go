// Package plan defines the structured plan a language model produces for one
// user turn (an intent from a closed vocabulary plus optional entities) and
// the validator that turns untrusted model output into a plan.
//
// Validation is all-or-nothing: output that is empty, not JSON, or does not
// match the embedded JSON Schema becomes the UNSURE plan. No partially
// populated plan ever leaves this package. Keys the schema does not name are
// ignored and dropped rather than rejected.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed plan_schema.json
var planSchemaJSON string

// Intent is the category of request a turn is classified into.
type Intent string

// The closed intent vocabulary.
const (
	IntentGreeting        Intent = "GREETING"
	IntentDirectResponse  Intent = "DIRECT_RESPONSE"
	IntentExplainDocument Intent = "EXPLAIN_DOCUMENT"
	IntentLogMetric       Intent = "LOG_METRIC"
	IntentQueryMetrics    Intent = "QUERY_METRICS"
	IntentUnsure          Intent = "UNSURE"
)

// Intents lists every member of the vocabulary.
var Intents = []Intent{
	IntentGreeting,
	IntentDirectResponse,
	IntentExplainDocument,
	IntentLogMetric,
	IntentQueryMetrics,
	IntentUnsure,
}

// Entities are the optional parameters extracted alongside an intent. Every
// field may be empty.
type Entities struct {
	Query       string `json:"query,omitempty"`
	PDFFilePath string `json:"pdf_file_path,omitempty"`
	MetricType  string `json:"metric_type,omitempty"`
	Value       string `json:"value,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Aggregate   string `json:"aggregate,omitempty"`
	DateStart   string `json:"date_start,omitempty"`
	DateEnd     string `json:"date_end,omitempty"`
}

// Plan is a validated classification of one user turn.
type Plan struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
}

// Unsure returns the fallback plan.
func Unsure() Plan {
	return Plan{Intent: IntentUnsure}
}

// Sentinel errors reported by [ValidateDocument].
var (
	ErrEmpty          = errors.New("plan: empty model output")
	ErrNotJSON        = errors.New("plan: output is not valid JSON")
	ErrSchemaMismatch = errors.New("plan: output does not match schema")
)

var (
	compileOnce sync.Once
	planSchema  *jsonschema.Schema
	compileErr  error
)

// compiledSchema returns the compiled validation schema: the plan schema
// without its additionalProperties constraints.
func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		lenient, err := lenientSchema()
		if err != nil {
			compileErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("plan_schema.json", bytes.NewReader(lenient)); err != nil {
			compileErr = fmt.Errorf("plan: add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("plan_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("plan: compile schema: %w", err)
			return
		}
		planSchema = schema
	})
	return planSchema, compileErr
}

// lenientSchema drops additionalProperties from the plan and its entities.
func lenientSchema() ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(planSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("plan: parse schema: %w", err)
	}
	delete(doc, "additionalProperties")
	if props, ok := doc["properties"].(map[string]any); ok {
		if entities, ok := props["entities"].(map[string]any); ok {
			delete(entities, "additionalProperties")
		}
	}
	return json.Marshal(doc)
}

// Schema returns the strict plan JSON Schema, which forbids unnamed keys. It
// is sent to the model as the output shape constraint; [Validate] is more
// forgiving.
func Schema() json.RawMessage {
	return json.RawMessage(planSchemaJSON)
}

// Validate turns raw model output into a plan, falling back to [Unsure] on
// any failure. It never panics.
func Validate(raw string) Plan {
	p, err := ValidateDocument(raw)
	if err != nil {
		return Unsure()
	}
	return p
}

// ValidateDocument is [Validate] with the failure reason. On error the
// returned plan is always [Unsure].
func ValidateDocument(raw string) (Plan, error) {
	text := stripFence(raw)
	if text == "" {
		return Unsure(), ErrEmpty
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Unsure(), fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return Unsure(), err
	}
	if err := schema.Validate(doc); err != nil {
		return Unsure(), fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	var p Plan
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return Unsure(), fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return p, nil
}

// stripFence removes surrounding whitespace and a Markdown code fence, which
// some models add even under a schema constraint.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
