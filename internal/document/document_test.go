package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func fakeRunner(out string, err error, gotArgs *[]string) Runner {
	return func(_ context.Context, tool string, args ...string) ([]byte, error) {
		if gotArgs != nil {
			*gotArgs = append([]string{tool}, args...)
		}
		return []byte(out), err
	}
}

func TestExtract_RunsToolInLayoutMode(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.pdf", []byte("%PDF-1.7\n..."))
	var args []string
	e := New(WithToolPath("/opt/poppler/pdftotext"), WithRunner(fakeRunner("  Hemoglobin 13.5 g/dL\n\n", nil, &args)))

	text, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "Hemoglobin 13.5 g/dL" {
		t.Errorf("text = %q", text)
	}
	want := []string{"/opt/poppler/pdftotext", "-layout", path, "-"}
	if !slices.Equal(args, want) {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestExtract_Validation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		opts    []Option
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(*testing.T) string { return filepath.Join(dir, "nope.pdf") },
			wantErr: ErrNotFound,
		},
		{
			name:    "empty path",
			path:    func(*testing.T) string { return "  " },
			wantErr: ErrNotFound,
		},
		{
			name:    "directory",
			path:    func(*testing.T) string { return dir },
			wantErr: ErrNotFound,
		},
		{
			name:    "not a pdf",
			path:    func(t *testing.T) string { return writeFile(t, "notes.pdf", []byte("hello world")) },
			wantErr: ErrNotPDF,
		},
		{
			name:    "shorter than signature",
			path:    func(t *testing.T) string { return writeFile(t, "tiny.pdf", []byte("%P")) },
			wantErr: ErrNotPDF,
		},
		{
			name:    "too large",
			path:    func(t *testing.T) string { return writeFile(t, "big.pdf", []byte("%PDF-"+strings.Repeat("x", 64))) },
			opts:    []Option{WithMaxFileSize(32)},
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			called := false
			opts := append([]Option{WithRunner(func(context.Context, string, ...string) ([]byte, error) {
				called = true
				return nil, nil
			})}, tt.opts...)

			_, err := New(opts...).Extract(context.Background(), tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if called {
				t.Error("tool must not run for an invalid file")
			}
		})
	}
}

func TestExtract_ToolErrorsPropagate(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.pdf", []byte("%PDF-1.4"))
	for _, want := range []error{ErrToolUnavailable, ErrExtractionFailed} {
		e := New(WithRunner(fakeRunner("", want, nil)))
		if _, err := e.Extract(context.Background(), path); !errors.Is(err, want) {
			t.Errorf("err = %v, want %v", err, want)
		}
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.pdf", []byte("%PDF-1.4"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(WithRunner(fakeRunner("", errors.New("signal: killed"), nil)))
	if _, err := e.Extract(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExtract_TruncatesText(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.pdf", []byte("%PDF-1.4"))
	e := New(WithMaxTextLength(5), WithRunner(fakeRunner("äöüßéabc", nil, nil)))
	text, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != "äöüßé" {
		t.Errorf("text = %q, want first five characters", text)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := execRunner(context.Background(), "definitely-not-a-real-pdftotext-binary")
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
