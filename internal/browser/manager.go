// Package browser owns the Chrome instance the assistant drives. The manager
// handles the browser lifecycle, the driver executes page actions, and the
// listeners feed navigation and mutation events to the change detector.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ciciliostudio/sidekick/internal/logging"
)

// Manager manages a shared chromedp instance.
type Manager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	debugPort   int
	isHeadless  bool
}

// findChrome attempts to find a Chrome executable.
func findChrome() (string, error) {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Chromium\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		} else {
			if _, err := exec.LookPath(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		}
	}

	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("Chrome browser not found. Please install Chrome, Chromium, or Brave")
}

// NewManager starts Chrome and returns the manager. chromePath overrides
// autodetection when non-empty.
func NewManager(chromePath string, headless bool, debugPort int) (*Manager, error) {
	if chromePath == "" {
		found, err := findChrome()
		if err != nil {
			return nil, err
		}
		chromePath = found
	}
	logging.Info("Using Chrome from: %s", chromePath)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
	)

	if !headless {
		logging.Info("Chrome will run in visible mode (headless=false)")
		opts = append(opts,
			chromedp.Flag("headless", false),
		)
	} else {
		logging.Info("Chrome will run in headless mode (headless=true)")
	}

	opts = append(opts,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", debugPort)),
		chromedp.Flag("remote-debugging-address", "127.0.0.1"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	ctx, cancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			logging.Debug("[Chrome] "+format, v...)
		}),
	)

	// Start Chrome on the long-lived context. A timeout context here would
	// cancel the entire instance.
	if err := chromedp.Run(ctx); err != nil {
		allocCancel()
		cancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	return &Manager{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		debugPort:   debugPort,
		isHeadless:  headless,
	}, nil
}

// Context returns the chromedp context for running actions.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// DebugPort returns the remote debugging port Chrome was started on.
func (m *Manager) DebugPort() int {
	return m.debugPort
}

// Navigate navigates the tab to a URL.
func (m *Manager) Navigate(url string) error {
	err := chromedp.Run(m.ctx, chromedp.Navigate(url))
	if err != nil {
		if m.ctx.Err() != nil {
			return fmt.Errorf("Chrome context was cancelled")
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	// Give the page a moment to start loading.
	time.Sleep(500 * time.Millisecond)

	return nil
}

// PageHTML returns the serialized DOM of the current page.
func (m *Manager) PageHTML() (string, error) {
	var html string
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	return html, err
}

// PageInfo returns the current page URL and title.
func (m *Manager) PageInfo() (url string, title string, err error) {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	err = chromedp.Run(ctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
	)
	return url, title, err
}

// SelectedText returns the page's current text selection, trimmed by the
// browser, or "" when nothing is selected.
func (m *Manager) SelectedText() (string, error) {
	var selection string
	err := m.Eval(`(() => {
		const sel = window.getSelection();
		return sel ? sel.toString().trim() : '';
	})()`, &selection)
	return selection, err
}

// BodyTextLength returns the length of the body's rendered text. The change
// detector uses it as the content signature baseline.
func (m *Manager) BodyTextLength() (int, error) {
	var length int
	err := m.Eval(`document.body ? document.body.innerText.length : 0`, &length)
	return length, err
}

// Eval executes a JavaScript expression in the page.
func (m *Manager) Eval(script string, result interface{}) error {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	return chromedp.Run(ctx,
		chromedp.Evaluate(script, result),
	)
}

// WaitForPageLoad waits for the document to become interactive.
func (m *Manager) WaitForPageLoad(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	script := `document.readyState === 'complete' || document.readyState === 'interactive'`

	for {
		var ready bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ready)); err != nil {
			return fmt.Errorf("failed to check page readiness: %w", err)
		}

		if ready {
			// Small additional delay so elements finish rendering.
			time.Sleep(300 * time.Millisecond)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for page to load")
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Close shuts down the browser and cleans up resources.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
}
