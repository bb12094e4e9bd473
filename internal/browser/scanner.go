package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ciciliostudio/sidekick/internal/logging"
)

// DebugTarget represents a Chrome DevTools target.
type DebugTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ScanDebugPort lists the page targets exposed on a Chrome remote debugging
// port. Used to verify the assistant's tab is still reachable before a
// re-injection attempt.
func ScanDebugPort(port int) ([]DebugTarget, error) {
	var lastErr error
	for _, host := range []string{"localhost", "127.0.0.1"} {
		targets, err := targetsFromHost(host, port)
		if err != nil {
			lastErr = err
			continue
		}
		return targets, nil
	}
	return nil, fmt.Errorf("no debugger reachable on port %d: %w", port, lastErr)
}

func targetsFromHost(host string, port int) ([]DebugTarget, error) {
	url := fmt.Sprintf("http://%s:%d/json/list", host, port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var targets []DebugTarget
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, err
	}

	logging.Debug("Got %d targets from %s:%d", len(targets), host, port)
	return targets, nil
}

// ProbeTarget opens and immediately closes a WebSocket connection to the
// target's debugger URL, confirming the tab accepts connections.
func ProbeTarget(target DebugTarget) error {
	if target.WebSocketDebuggerURL == "" {
		return fmt.Errorf("target %s exposes no debugger URL", target.ID)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(target.WebSocketDebuggerURL, nil)
	if err != nil {
		return fmt.Errorf("debugger websocket unreachable: %w", err)
	}
	return conn.Close()
}

// HealthCheck reports whether at least one page target on the port accepts
// debugger connections.
func HealthCheck(port int) error {
	targets, err := ScanDebugPort(port)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if err := ProbeTarget(t); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy page target on port %d", port)
}
