package auth

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"calbrief/pkg/logging"
)

// ConsentSurface shows the authorization URL to the user.
type ConsentSurface interface {
	Present(ctx context.Context, authURL string) (ConsentSession, error)
}

// ConsentSession is a presented authorization page. Closed fires when the
// user dismissed it; surfaces that cannot observe dismissal only fire it
// after Close.
type ConsentSession interface {
	Closed() <-chan struct{}
	Close() error
}

// session is a ConsentSession that is only closed explicitly.
type session struct {
	once   sync.Once
	closed chan struct{}
}

func newSession() *session {
	return &session{closed: make(chan struct{})}
}

func (s *session) Closed() <-chan struct{} {
	return s.closed
}

func (s *session) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// BrowserSurface opens the authorization URL in the system browser. If the
// browser cannot be launched the URL is written to Out instead.
type BrowserSurface struct {
	Out  io.Writer
	open func(string) error
}

// NewBrowserSurface creates a BrowserSurface writing fallbacks to out.
func NewBrowserSurface(out io.Writer) *BrowserSurface {
	return &BrowserSurface{Out: out, open: OpenBrowser}
}

func (b *BrowserSurface) Present(_ context.Context, authURL string) (ConsentSession, error) {
	if err := b.open(authURL); err != nil {
		logging.Warn("OAuth", "Could not open browser: %v", err)
		if b.Out != nil {
			printAuthURL(b.Out, authURL)
		}
	}
	return newSession(), nil
}

// PrintSurface writes the authorization URL for the user to open manually.
type PrintSurface struct {
	Out io.Writer
}

func (p *PrintSurface) Present(_ context.Context, authURL string) (ConsentSession, error) {
	if p.Out == nil {
		return nil, fmt.Errorf("print surface has no output")
	}
	printAuthURL(p.Out, authURL)
	return newSession(), nil
}

func printAuthURL(out io.Writer, authURL string) {
	fmt.Fprintf(out, "Open the following URL in your browser to sign in:\n\n  %s\n\n", authURL)
}

// OpenBrowser opens url in the default web browser on Linux, macOS and Windows.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// The browser outlives us; don't wait on it.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	return nil
}
