package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/hds-conecte/conecte/internal/backend"
)

// googleLoginTimeout bounds the wait for the browser redirect
const googleLoginTimeout = 5 * time.Minute

func runGoogleLogin(ctx context.Context, env *Env) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}

	redirectTo := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	res := env.App.Store.SignInWithGoogle(ctx, redirectTo)
	if err := result(res); err != nil {
		ln.Close()
		return err
	}

	sessions := make(chan *backend.Session, 1)
	failures := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			if msg := q.Get("error"); msg != "" {
				http.Error(w, "Sign-in failed: "+msg, http.StatusBadRequest)
				deliver(failures, fmt.Errorf("google sign-in failed: %s", msg))
				return
			}
			s, err := backend.SessionFromQuery(q)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				deliver(failures, err)
				return
			}
			fmt.Fprintln(w, "Signed in to HDS Conecte. You can close this window.")
			deliver(sessions, s)
		}),
	}
	go srv.Serve(ln)
	defer srv.Close()

	open := env.OpenBrowser
	if open == nil {
		open = openBrowser
	}
	if err := open(res.RedirectURL); err != nil {
		env.printf("Please visit: %s\n", res.RedirectURL)
	}
	env.printf("Waiting for Google sign-in...\n")

	ctx, cancel := context.WithTimeout(ctx, googleLoginTimeout)
	defer cancel()

	var s *backend.Session
	select {
	case s = <-sessions:
	case err := <-failures:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out waiting for Google sign-in")
		}
		return ctx.Err()
	}

	if _, err := env.App.Client.SetSession(ctx, s); err != nil {
		return fmt.Errorf("failed to adopt session: %w", err)
	}
	if err := result(env.App.Store.RefreshSession(ctx)); err != nil {
		return err
	}
	fmt.Fprintln(env.Out, "✓ Login successful!")
	printWhoAmI(env)
	return nil
}

// deliver sends v unless a value is already waiting
func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
