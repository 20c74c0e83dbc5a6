// Package prompt renders the instruction texts sent to the language model:
// the planning prompt that classifies a user turn and the explanation prompt
// that walks through an extracted report.
//
// Templates use {name} placeholders. Unknown placeholders are left in place
// so a template typo degrades the prompt instead of failing the turn.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

//go:embed templates/*.txt
var templates embed.FS

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Default templates.
var (
	DefaultPlanning = mustTemplate("planning.txt")
	DefaultExplain  = mustTemplate("explain.txt")
	SystemPrompt    = mustTemplate("system.txt")
)

// DefaultExplainQuery is used when the user attached a report without asking
// anything specific.
const DefaultExplainQuery = "Explain this report."

func mustTemplate(name string) string {
	b, err := templates.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded template %s: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

// Render replaces every {name} in template with values[name]. Placeholders
// without a value are kept verbatim. Substituted values are not rescanned.
func Render(template string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}

// Builder renders prompts from a fixed set of templates.
type Builder struct {
	planning string
	explain  string
	system   string
}

// Option configures a [Builder].
type Option func(*Builder)

// WithPlanningTemplate overrides the planning template.
func WithPlanningTemplate(t string) Option {
	return func(b *Builder) { b.planning = t }
}

// WithExplainTemplate overrides the explanation template.
func WithExplainTemplate(t string) Option {
	return func(b *Builder) { b.explain = t }
}

// WithSystemPrompt overrides the assistant persona.
func WithSystemPrompt(t string) Option {
	return func(b *Builder) { b.system = t }
}

// NewBuilder returns a Builder using the embedded templates unless
// overridden.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		planning: DefaultPlanning,
		explain:  DefaultExplain,
		system:   SystemPrompt,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Files names template override files. Empty paths keep the default.
type Files struct {
	System   string
	Planning string
	Explain  string
}

// LoadFiles reads template overrides from disk and returns them as options.
func LoadFiles(f Files) ([]Option, error) {
	var opts []Option
	for _, item := range []struct {
		path string
		opt  func(string) Option
	}{
		{f.System, WithSystemPrompt},
		{f.Planning, WithPlanningTemplate},
		{f.Explain, WithExplainTemplate},
	} {
		if item.path == "" {
			continue
		}
		b, err := os.ReadFile(item.path)
		if err != nil {
			return nil, fmt.Errorf("prompt: read template %q: %w", item.path, err)
		}
		opts = append(opts, item.opt(strings.TrimSpace(string(b))))
	}
	return opts, nil
}

// System returns the persona text that seeds every conversation.
func (b *Builder) System() string { return b.system }

// Planning renders the planning prompt for query at now. {time} receives a
// human-readable timestamp and {date} the ISO date and clock time the model
// should use for "today" and "now".
func (b *Builder) Planning(now time.Time, query string) string {
	return Render(b.planning, map[string]string{
		"time":  now.Format(time.RFC1123),
		"date":  now.Format("2006-01-02 15:04:05"),
		"query": query,
	})
}

// Explain renders the report explanation prompt. An empty query falls back
// to [DefaultExplainQuery].
func (b *Builder) Explain(query, documentText string) string {
	if strings.TrimSpace(query) == "" {
		query = DefaultExplainQuery
	}
	return Render(b.explain, map[string]string{
		"query":      query,
		"reportText": documentText,
	})
}
