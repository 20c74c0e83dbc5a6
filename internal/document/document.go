// Package document extracts plain text from PDF reports so the assistant can
// explain them.
//
// Extraction shells out to poppler's pdftotext in layout mode. The file is
// checked for existence, size and the PDF signature before the tool runs.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// Defaults for [Extractor].
const (
	DefaultToolPath      = "pdftotext"
	DefaultMaxFileSize   = 2 << 20
	DefaultMaxTextLength = 500_000
)

// pdfSignature is the magic prefix of every PDF file.
var pdfSignature = []byte("%PDF-")

var (
	// ErrNotFound is returned when the document path does not exist.
	ErrNotFound = errors.New("document: file not found")

	// ErrTooLarge is returned when the file exceeds the configured size limit.
	ErrTooLarge = errors.New("document: file too large")

	// ErrNotPDF is returned when the file does not start with the PDF signature.
	ErrNotPDF = errors.New("document: not a PDF file")

	// ErrToolUnavailable is returned when the pdftotext binary cannot be found.
	ErrToolUnavailable = errors.New("document: pdftotext not available")

	// ErrExtractionFailed is returned when pdftotext exits unsuccessfully.
	ErrExtractionFailed = errors.New("document: text extraction failed")
)

// Runner executes the extraction tool and returns its stdout. It is
// replaceable in tests.
type Runner func(ctx context.Context, tool string, args ...string) (stdout []byte, err error)

// Extractor turns PDF files into text. Create one with [New].
type Extractor struct {
	toolPath      string
	maxFileSize   int64
	maxTextLength int
	run           Runner
}

// Option is a functional option for [New].
type Option func(*Extractor)

// WithToolPath sets the pdftotext binary. Bare names are looked up in PATH.
func WithToolPath(path string) Option {
	return func(e *Extractor) {
		if path != "" {
			e.toolPath = path
		}
	}
}

// WithMaxFileSize sets the largest accepted file in bytes.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

// WithMaxTextLength caps the returned text, measured in characters.
func WithMaxTextLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTextLength = n
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.run = r }
}

// New returns an Extractor with the given options applied over the defaults.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		toolPath:      DefaultToolPath,
		maxFileSize:   DefaultMaxFileSize,
		maxTextLength: DefaultMaxTextLength,
		run:           execRunner,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the text of the PDF at path. The result may be empty when
// the document has no text layer.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := e.check(path); err != nil {
		return "", err
	}

	out, err := e.run(ctx, e.toolPath, "-layout", path, "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("document: extract %s: %w", path, ctxErr)
		}
		return "", err
	}

	return truncate(strings.TrimSpace(string(out)), e.maxTextLength), nil
}

// check validates the file before the tool is invoked.
func (e *Extractor) check(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("document: empty path: %w", ErrNotFound)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("document: stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	if fi.Size() > e.maxFileSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, fi.Size(), e.maxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("document: open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, len(pdfSignature))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfSignature) {
		return fmt.Errorf("%w: %s", ErrNotPDF, path)
	}
	return nil
}

// execRunner runs tool with args and classifies failures.
func execRunner(ctx context.Context, tool string, args ...string) ([]byte, error) {
	bin, err := exec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, tool, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, msg)
	}
	return stdout.Bytes(), nil
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
