package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/session"
)

const helpText = `Commands:
  /attach <path>  attach a PDF report to your next message
  /help           show this help
  /quit           leave the chat`

// Run executes the interactive chat loop and blocks until in is exhausted,
// the user types /quit, or ctx is cancelled. The model server lifecycle runs
// once before the first prompt and its notification is written to out.
//
// Each plain line is one turn. A turn that is still running when ctx is
// cancelled is abandoned with its own context.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if msg := a.InitModel(ctx); msg != "" {
		fmt.Fprintln(out, msg)
	}
	fmt.Fprintln(out, "Health Compass is ready. Type /help for commands.")

	readCtx, stop := context.WithCancel(ctx)
	defer stop()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("app: read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if quit := a.handleLine(ctx, line, out); quit {
			return nil
		}
	}
}

// handleLine processes one input line and reports whether the loop should
// end.
func (a *App) handleLine(ctx context.Context, line string, out io.Writer) bool {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		fmt.Fprintln(out, "Goodbye.")
		return true
	case line == "/help":
		fmt.Fprintln(out, helpText)
		return false
	case line == "/attach" || strings.HasPrefix(line, "/attach "):
		path := strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "/attach")), `"'`)
		if path == "" {
			fmt.Fprintln(out, "Usage: /attach <path to PDF>")
			return false
		}
		a.session.Attach(path, filepath.Base(path))
		fmt.Fprintf(out, "Attached %s. It will be sent with your next message.\n", filepath.Base(path))
		return false
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(out, "Unknown command %q. Type /help for commands.\n", strings.Fields(line)[0])
		return false
	}

	reply, err := a.session.Turn(ctx, line)
	switch {
	case err == nil:
		fmt.Fprintln(out, reply)
	case errors.Is(err, session.ErrInputTooLong):
		fmt.Fprintf(out, "Your message is too long. Please keep it under %d characters.\n", a.cfg.Input.MaxLength)
	case errors.Is(err, session.ErrTurnInProgress):
		fmt.Fprintln(out, "Please wait for the current answer.")
	default:
		observe.Logger(ctx).Warn("turn rejected", "err", err)
	}
	return false
}
