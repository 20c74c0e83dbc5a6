package plan

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidate_ValidPlans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Plan
	}{
		{
			name: "greeting without entities",
			raw:  `{"intent":"GREETING"}`,
			want: Plan{Intent: IntentGreeting},
		},
		{
			name: "log metric",
			raw:  `{"intent":"LOG_METRIC","entities":{"metric_type":"blood_pressure","value":"120/80","unit":"mmHg","date":"today"}}`,
			want: Plan{Intent: IntentLogMetric, Entities: Entities{
				MetricType: "blood_pressure", Value: "120/80", Unit: "mmHg", Date: "today",
			}},
		},
		{
			name: "query with aggregate and range",
			raw:  `{"intent":"QUERY_METRICS","entities":{"metric_type":"heart_rate","aggregate":"avg","date_start":"2025-01-01","date_end":"2025-01-07"}}`,
			want: Plan{Intent: IntentQueryMetrics, Entities: Entities{
				MetricType: "heart_rate", Aggregate: "avg", DateStart: "2025-01-01", DateEnd: "2025-01-07",
			}},
		},
		{
			name: "explain document",
			raw:  `{"intent":"EXPLAIN_DOCUMENT","entities":{"pdf_file_path":"/tmp/r.pdf","query":"What does this say?"}}`,
			want: Plan{Intent: IntentExplainDocument, Entities: Entities{
				PDFFilePath: "/tmp/r.pdf", Query: "What does this say?",
			}},
		},
		{
			name: "fenced output",
			raw:  "```json\n{\"intent\":\"DIRECT_RESPONSE\",\"entities\":{\"query\":\"Tell me about hypertension\"}}\n```",
			want: Plan{Intent: IntentDirectResponse, Entities: Entities{Query: "Tell me about hypertension"}},
		},
		{
			name: "single line fence",
			raw:  "```json {\"intent\":\"UNSURE\"} ```",
			want: Plan{Intent: IntentUnsure},
		},
		{
			name: "unknown entity key is dropped",
			raw:  `{"intent":"LOG_METRIC","entities":{"metric_type":"weight","value":"75","confidence":"high"}}`,
			want: Plan{Intent: IntentLogMetric, Entities: Entities{MetricType: "weight", Value: "75"}},
		},
		{
			name: "unknown top level key is dropped",
			raw:  `{"intent":"GREETING","reasoning":"user said hi","confidence":0.9}`,
			want: Plan{Intent: IntentGreeting},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n  {\"intent\": \"GREETING\", \"entities\": {}}  \n",
			want: Plan{Intent: IntentGreeting},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateDocument(tt.raw)
			if err != nil {
				t.Fatalf("ValidateDocument: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate_FallsBackToUnsure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", ErrEmpty},
		{"whitespace", "   \n\t", ErrEmpty},
		{"not json", "Sure! The intent is GREETING.", ErrNotJSON},
		{"truncated json", `{"intent":"GREETING"`, ErrNotJSON},
		{"missing intent", `{"entities":{"query":"hi"}}`, ErrSchemaMismatch},
		{"unknown intent", `{"intent":"ORDER_PIZZA"}`, ErrSchemaMismatch},
		{"lower case intent", `{"intent":"greeting"}`, ErrSchemaMismatch},
		{"bad aggregate", `{"intent":"QUERY_METRICS","entities":{"metric_type":"weight","aggregate":"sum"}}`, ErrSchemaMismatch},
		{"numeric value", `{"intent":"LOG_METRIC","entities":{"metric_type":"weight","value":75}}`, ErrSchemaMismatch},
		{"array", `[{"intent":"GREETING"}]`, ErrSchemaMismatch},
		{"null", `null`, ErrSchemaMismatch},
		{"entities null", `{"intent":"GREETING","entities":null}`, ErrSchemaMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateDocument(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got != Unsure() {
				t.Errorf("plan = %+v, want UNSURE", got)
			}
			if v := Validate(tt.raw); v != Unsure() {
				t.Errorf("Validate = %+v, want UNSURE", v)
			}
		})
	}
}

func TestSchema_ListsEveryIntent(t *testing.T) {
	t.Parallel()

	var doc struct {
		Properties struct {
			Intent struct {
				Enum []Intent `json:"enum"`
			} `json:"intent"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(Schema(), &doc); err != nil {
		t.Fatalf("Schema() is not JSON: %v", err)
	}
	if len(doc.Properties.Intent.Enum) != len(Intents) {
		t.Fatalf("schema enum = %v, want %v", doc.Properties.Intent.Enum, Intents)
	}
	for i, in := range Intents {
		if doc.Properties.Intent.Enum[i] != in {
			t.Errorf("enum[%d] = %q, want %q", i, doc.Properties.Intent.Enum[i], in)
		}
	}
}

func TestCompiledSchema(t *testing.T) {
	t.Parallel()

	s, err := compiledSchema()
	if err != nil {
		t.Fatalf("compiledSchema: %v", err)
	}
	if s == nil {
		t.Fatal("compiledSchema returned nil schema")
	}
}

func TestSchema_StaysStrictForTheModel(t *testing.T) {
	t.Parallel()

	var doc struct {
		AdditionalProperties *bool `json:"additionalProperties"`
		Properties           struct {
			Entities struct {
				AdditionalProperties *bool `json:"additionalProperties"`
			} `json:"entities"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(Schema(), &doc); err != nil {
		t.Fatalf("Schema() is not JSON: %v", err)
	}
	if doc.AdditionalProperties == nil || *doc.AdditionalProperties {
		t.Error("plan schema must forbid additional properties")
	}
	if doc.Properties.Entities.AdditionalProperties == nil || *doc.Properties.Entities.AdditionalProperties {
		t.Error("entities schema must forbid additional properties")
	}
}
