package agent

import (
	"context"
	"errors"

	"github.com/MrWong99/healthcompass/pkg/provider/llm"
)

// User-facing replies shared by the handlers and the turn boundary.
const (
	MsgGreeting = "Hello! How can I assist you today?"
	MsgUnsure   = "I'm not sure how to respond to that. Please ask a health-related question."

	MsgUnableToProcess = "Unable to process your request. Please try again."
	MsgTimeout         = "Request timed out. Please try again."
	MsgCancelled       = "Request cancelled."
	MsgUnreachable     = "Error connecting to the model server. Is it running?"

	MsgDirectEmpty = "Sorry, I could not generate a response. Please try again."

	MsgExplainNoFile   = "I was asked to explain a PDF report, but no file path was provided. Please upload a PDF and specify your query."
	MsgExplainNoText   = "I was unable to extract any text from the provided PDF file. Please ensure the file is not corrupted or password-protected."
	MsgExplainNotFound = "I could not find the PDF file you attached. Please check the path and try again."
	MsgExplainNotPDF   = "The attached file does not look like a PDF document. Please attach a PDF report."
	MsgExplainTooLarge = "The attached PDF is too large to process. Please attach a smaller report."
	MsgExplainNoTool   = "I could not read the PDF because pdftotext is not installed. Please install poppler-utils and try again."
	MsgExplainError    = "An error occurred while processing the PDF. Please try again."
	MsgExplainEmpty    = "Sorry, but I was unable to explain the report. Please try again later."

	MsgLogIncomplete = "Thank you for providing the information. I am unable to log the metric with the provided information. Can you please be more specific?"
	MsgLogBadValue   = "I could not understand the value %q. Please provide a number, for example \"75\" or \"120/80\" for blood pressure."
	MsgLogComposite  = "Combined readings like %q are only supported for blood pressure. Please log each %s value separately."
	MsgLogFailed     = "An error occurred while saving your metric. Please try again later."

	MsgQueryNoType = `Please specify a metric type to query. For example, "heart_rate", "weight", etc.`
	MsgQueryNoRows = `No records found for the metric type "%s".`
	MsgQueryFailed = "An error occurred while querying the metrics. Please try again later."
)

// Apology is an error that carries the reply to show in place of a failed
// handler's answer. Handlers wrap collaborator failures in one.
type Apology struct {
	// Message is the user-facing reply.
	Message string

	// Err is the underlying failure, logged but never shown.
	Err error
}

// Error implements error.
func (a *Apology) Error() string {
	if a.Err == nil {
		return "agent: " + a.Message
	}
	return "agent: " + a.Err.Error()
}

// Unwrap returns the underlying failure.
func (a *Apology) Unwrap() error { return a.Err }

func apologize(msg string, err error) error {
	return &Apology{Message: msg, Err: err}
}

// ApologyFor maps a handler or planner failure to the reply shown to the
// user. An expired deadline always yields [MsgTimeout], even when a handler
// attached its own apology, because the turn ran out of time rather than the
// subsystem failing.
func ApologyFor(err error) string {
	if err == nil {
		return MsgUnableToProcess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgTimeout
	}
	var a *Apology
	if errors.As(err, &a) && a.Message != "" {
		return a.Message
	}
	if errors.Is(err, llm.ErrUnreachable) {
		return MsgUnreachable
	}
	return MsgUnableToProcess
}
