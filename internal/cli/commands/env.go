// Package commands implements the CLI pages of HDS Conecte.
//
// Each page maps to a route of the app; the root command resolves the route
// guard against the restored session before any page runs.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/session"
)

// Command annotations read by the root command
const (
	RouteAnnotation     = "route"      // Route the command renders
	NoSessionAnnotation = "no-session" // Runs without restoring the session
)

// App is what page commands work with once the session is ready
type App struct {
	Client *backend.Client
	Store  *session.Store
}

// Env carries IO and, after the root pre-run, the App
type Env struct {
	App         *App
	ServerURL   string
	Out         io.Writer
	Err         io.Writer
	In          io.Reader
	Interactive bool

	// OpenBrowser shows a URL to the user; nil uses the system browser
	OpenBrowser func(url string) error

	reader *bufio.Reader
}

// NewEnv returns an Env bound to the process terminal
func NewEnv() *Env {
	return &Env{
		Out:         os.Stdout,
		Err:         os.Stderr,
		In:          os.Stdin,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Notifier prints store notices
func (e *Env) Notifier() session.Notifier {
	return session.NotifierFunc(func(n session.Notice) {
		switch n.Level {
		case session.LevelSuccess:
			fmt.Fprintf(e.Out, "✓ %s\n", n.Message)
		case session.LevelError:
			fmt.Fprintf(e.Err, "✗ %s\n", n.Message)
		default:
			fmt.Fprintf(e.Out, "• %s\n", n.Message)
		}
	})
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.Out, format, args...)
}

// readLine reads one line from In
func (e *Env) readLine(label string) (string, error) {
	if e.reader == nil {
		e.reader = bufio.NewReader(e.In)
	}
	fmt.Fprint(e.Out, label)
	line, err := e.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword prompts without echo on a terminal, or reads a line otherwise
func (e *Env) readPassword(label string) (string, error) {
	if f, ok := e.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(e.Out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(e.Out) // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return e.readLine(label)
}

// withRoute marks cmd as rendering path; subcommands inherit it
func withRoute(cmd *cobra.Command, path string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[RouteAnnotation] = path
	return cmd
}

// withoutSession marks cmd as not needing the session; subcommands inherit it
func withoutSession(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[NoSessionAnnotation] = "true"
	return cmd
}

// NeedsSession reports whether the session must be restored before cmd runs
func NeedsSession(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[NoSessionAnnotation]; ok {
			return false
		}
	}
	return true
}

// RouteOf returns the route cmd renders, looking at parents when unset
func RouteOf(cmd *cobra.Command) (string, bool) {
	for c := cmd; c != nil; c = c.Parent() {
		if path, ok := c.Annotations[RouteAnnotation]; ok {
			return path, true
		}
	}
	return "", false
}

// ErrNotFound is returned for paths outside the route table
var ErrNotFound = errors.New("404: page not found")

// RedirectError reports a guard refusing a page
type RedirectError struct {
	From string
	To   string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s is not available; redirected to %s", e.From, e.To)
}

// Hint suggests what to run instead
func (e *RedirectError) Hint() string {
	if e.To == guard.PathLogin {
		return "Sign in first: conecte login"
	}
	if r, ok := guard.Lookup(e.From); ok && r.Policy == guard.Guest {
		return "Already signed in: conecte home"
	}
	if e.To == guard.PathHome {
		return "Your role cannot open this page: conecte home"
	}
	return "Run: conecte open " + e.To
}

// Guard resolves the guard for path against the current session
func (e *Env) Guard(path string) error {
	d := guard.Resolve(path, e.App.Store.Snapshot().Guard())
	switch d.Action {
	case guard.Render:
		return nil
	case guard.Redirect:
		return &RedirectError{From: path, To: d.To}
	case guard.NotFound:
		return ErrNotFound
	default:
		return errors.New("session is still loading, try again")
	}
}

// result turns a failed store Result into an error; the notice is already printed
func result(r session.Result) error {
	if r.Success {
		return nil
	}
	return silentError{msg: r.Error}
}

// silentError is an error the user has already been told about
type silentError struct{ msg string }

func (e silentError) Error() string { return e.msg }

// IsSilent reports whether err was already shown as a notice
func IsSilent(err error) bool {
	var s silentError
	return errors.As(err, &s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
