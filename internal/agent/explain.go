package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/healthcompass/internal/document"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
)

// reportExplainer answers EXPLAIN_DOCUMENT plans: it extracts the text of the
// referenced PDF and asks the model to explain it in plain language.
type reportExplainer struct {
	extractor   Extractor
	provider    llm.Provider
	prompts     *prompt.Builder
	temperature float64
	metrics     *observe.Metrics
}

// Handle implements [Handler].
func (e *reportExplainer) Handle(ctx context.Context, req Request) (string, error) {
	path := strings.TrimSpace(req.Plan.Entities.PDFFilePath)
	if path == "" {
		return MsgExplainNoFile, nil
	}

	start := time.Now()
	text, err := e.extractor.Extract(ctx, path)
	e.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", apologize(extractionApology(err), fmt.Errorf("agent: extract %s: %w", path, err))
	}
	if strings.TrimSpace(text) == "" {
		return MsgExplainNoText, nil
	}

	observe.Logger(ctx).Debug("extracted report text", "path", path, "chars", len(text))

	p := e.prompts.Explain(req.Plan.Entities.Query, text)
	start = time.Now()
	answer, err := llm.Generate(ctx, e.provider, p, llm.GenerateOptions{Temperature: e.temperature})
	e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", apologize(MsgExplainError, fmt.Errorf("agent: explain report: %w", err))
	}
	if strings.TrimSpace(answer) == "" {
		return MsgExplainEmpty, nil
	}
	return answer, nil
}

func extractionApology(err error) string {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return MsgExplainNotFound
	case errors.Is(err, document.ErrNotPDF):
		return MsgExplainNotPDF
	case errors.Is(err, document.ErrTooLarge):
		return MsgExplainTooLarge
	case errors.Is(err, document.ErrToolUnavailable):
		return MsgExplainNoTool
	default:
		return MsgExplainError
	}
}
