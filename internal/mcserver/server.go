// Package mcserver starts, stops, and reports on the companion Minecraft
// server processes. Processes are matched by their launch-script path, and
// public reachability comes from the local ngrok management API plus an
// optional static cloudflared hostname.
package mcserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Status is a point-in-time snapshot of both server processes and their
// network exposure.
type Status struct {
	MainRunning    bool
	AltRunning     bool
	NgrokURLs      []string
	LANIP          string
	CloudflaredURL string
}

// Controller manages the two launch scripts configured for the bot.
type Controller struct {
	Script         string
	AltScript      string
	Port           int
	NgrokAPIURL    string
	CloudflaredURL string

	httpClient *http.Client
	runCmd     func(name string, args ...string) ([]byte, error)
}

// NewController builds a controller over the configured scripts.
func NewController(script, altScript string, port int, ngrokAPIURL, cloudflaredURL string) *Controller {
	return &Controller{
		Script:         script,
		AltScript:      altScript,
		Port:           port,
		NgrokAPIURL:    ngrokAPIURL,
		CloudflaredURL: cloudflaredURL,
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		runCmd: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
	}
}

// StartMain launches the main server script detached.
func (c *Controller) StartMain() error {
	return c.start(c.Script)
}

// StartAlt launches the alternate server script detached.
func (c *Controller) StartAlt() error {
	return c.start(c.AltScript)
}

func (c *Controller) start(script string) error {
	if script == "" {
		return fmt.Errorf("no launch script configured")
	}
	if c.isRunning(script) {
		return fmt.Errorf("server already running: %s", script)
	}
	if out, err := c.runCmd("sh", "-c", fmt.Sprintf("nohup %q >/dev/null 2>&1 &", script)); err != nil {
		return fmt.Errorf("launch %s: %w: %s", script, err, strings.TrimSpace(string(out)))
	}
	slog.Info("server launch requested", "script", script)
	return nil
}

// Stop shuts down the server selected by target ("main", "alt", or "auto").
// Auto stops whichever is running, preferring main.
func (c *Controller) Stop(target string) (string, error) {
	script := ""
	switch target {
	case "main":
		script = c.Script
	case "alt":
		script = c.AltScript
	default:
		if c.isRunning(c.Script) {
			script = c.Script
		} else if c.isRunning(c.AltScript) {
			script = c.AltScript
		}
	}
	if script == "" {
		return "", fmt.Errorf("no running server found to stop")
	}
	if out, err := c.runCmd("pkill", "-f", script); err != nil {
		return "", fmt.Errorf("stop %s: %w: %s", script, err, strings.TrimSpace(string(out)))
	}
	slog.Info("server stop requested", "script", script)
	return script, nil
}

func (c *Controller) isRunning(script string) bool {
	if script == "" {
		return false
	}
	out, err := c.runCmd("pgrep", "-f", script)
	return err == nil && len(strings.TrimSpace(string(out))) > 0
}

// Snapshot gathers process and tunnel state for the status command.
func (c *Controller) Snapshot() Status {
	return Status{
		MainRunning:    c.isRunning(c.Script),
		AltRunning:     c.isRunning(c.AltScript),
		NgrokURLs:      c.ngrokTunnels(),
		LANIP:          lanIP(),
		CloudflaredURL: c.CloudflaredURL,
	}
}

type ngrokTunnelList struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

func (c *Controller) ngrokTunnels() []string {
	if c.NgrokAPIURL == "" {
		return nil
	}
	resp, err := c.httpClient.Get(strings.TrimRight(c.NgrokAPIURL, "/") + "/api/tunnels")
	if err != nil {
		slog.Debug("ngrok API unreachable", "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var list ngrokTunnelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil
	}
	urls := make([]string, 0, len(list.Tunnels))
	for _, t := range list.Tunnels {
		if t.PublicURL != "" {
			urls = append(urls, t.PublicURL)
		}
	}
	return urls
}

// lanIP finds the host's outbound interface address without sending traffic.
func lanIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

// FormatStatus renders a status snapshot for chat, always naming both script
// paths and every network surface so a glance answers "how do I connect".
func (c *Controller) FormatStatus(s Status) string {
	var b strings.Builder

	if s.MainRunning {
		fmt.Fprintf(&b, "🟢 Main server is running (%s)\n", c.Script)
	} else {
		fmt.Fprintf(&b, "🔴 Main server is stopped (%s)\n", c.Script)
	}
	if s.AltRunning {
		fmt.Fprintf(&b, "🟢 Alt server is running (%s)\n", c.AltScript)
	} else {
		fmt.Fprintf(&b, "🔴 Alt server is stopped (%s)\n", c.AltScript)
	}

	b.WriteString("Ngrok tunnels: ")
	if len(s.NgrokURLs) > 0 {
		b.WriteString(strings.Join(s.NgrokURLs, ", "))
	} else {
		b.WriteString("none detected")
	}
	b.WriteString("\n")

	b.WriteString("LAN address: ")
	if s.LANIP != "" {
		fmt.Fprintf(&b, "%s:%d", s.LANIP, c.Port)
	} else {
		b.WriteString("unavailable")
	}
	b.WriteString("\n")

	b.WriteString("Cloudflared tunnel: ")
	if s.CloudflaredURL != "" {
		b.WriteString(s.CloudflaredURL)
	} else {
		b.WriteString("none detected")
	}

	return b.String()
}

// ParseStopTarget reads the stop command's argument and resolves which
// server to stop. Unknown arguments fall back to auto.
func ParseStopTarget(content, prefix string) string {
	rest := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(content, prefix)))
	if rest == "" {
		return "auto"
	}
	for _, token := range strings.Fields(rest) {
		switch token {
		case "main", "primary":
			return "main"
		case "alt", "opticraft":
			return "alt"
		}
	}
	return "auto"
}
