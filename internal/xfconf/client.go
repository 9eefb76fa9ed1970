package xfconf

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Tool is the property-store query binary; Daemon is its caching daemon.
	Tool   = "xfconf-query"
	Daemon = "xfconfd"
)

// ErrNotAvailable marks a property that could not be read. It is distinct
// from a property whose value is a legitimate empty string.
var ErrNotAvailable = errors.New("xfconf: property not available")

// Runner executes property-store commands as the session owner.
type Runner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
}

// Client wraps the property-store tool. Mutations are best-effort: a missing
// tool or a failed set is logged and absorbed so a cosmetic failure can never
// abort a mode switch. Reads return ErrNotAvailable instead.
type Client struct {
	Runner Runner

	// CacheRefresh is the settle delay after restarting the daemon.
	CacheRefresh time.Duration

	LookPath func(string) (string, error)
	Sleep    func(time.Duration)
}

func (c *Client) Get(channel, path string) (string, error) {
	if !c.available() {
		return "", ErrNotAvailable
	}
	stdout, stderr, code, err := c.Runner.Run(Tool, "-c", channel, "-p", path)
	if err != nil {
		log.Debug().Msgf(
			"xfconf.Client.Get unavailable channel=%s path=%s exit=%d stderr=%q",
			channel, path, code, strings.TrimSpace(string(stderr)),
		)
		return "", ErrNotAvailable
	}
	return strings.TrimRight(string(stdout), "\n"), nil
}

// Set creates or updates a property. Failures are soft by design: the mode
// switch keeps going when a single property cannot be written.
func (c *Client) Set(channel, path, typ, value string) {
	if !c.available() {
		log.Warn().Msgf("xfconf.Client.Set skipped tool=%s reason=missing channel=%s path=%s", Tool, channel, path)
		return
	}
	_, stderr, code, err := c.Runner.Run(Tool, "-c", channel, "-p", path, "--create", "-t", typ, "-s", value)
	if err != nil {
		log.Warn().Msgf(
			"xfconf.Client.Set soft failure channel=%s path=%s type=%s exit=%d stderr=%q",
			channel, path, typ, code, strings.TrimSpace(string(stderr)),
		)
	}
}

// Reset removes a property. Best-effort like Set.
func (c *Client) Reset(channel, path string) {
	if !c.available() {
		return
	}
	_, stderr, code, err := c.Runner.Run(Tool, "-c", channel, "-p", path, "-r")
	if err != nil {
		log.Warn().Msgf(
			"xfconf.Client.Reset soft failure channel=%s path=%s exit=%d stderr=%q",
			channel, path, code, strings.TrimSpace(string(stderr)),
		)
	}
}

// List returns the property paths under prefix using the one-column listing,
// which is free of the column-alignment ambiguity of the verbose dump.
func (c *Client) List(channel, prefix string) ([]string, error) {
	if !c.available() {
		return nil, ErrNotAvailable
	}
	stdout, _, _, err := c.Runner.Run(Tool, "-c", channel, "-l")
	if err != nil {
		return nil, ErrNotAvailable
	}
	var paths []string
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, prefix) {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// ListVerbose returns the raw lines of the verbose dump (path plus value per
// line, whitespace-aligned). Callers own the tolerant parsing.
func (c *Client) ListVerbose(channel string) ([]string, error) {
	if !c.available() {
		return nil, ErrNotAvailable
	}
	stdout, _, _, err := c.Runner.Run(Tool, "-c", channel, "-l", "-v")
	if err != nil {
		return nil, ErrNotAvailable
	}
	var lines []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// RestartDaemon kills the caching daemon and waits for the settle delay. The
// daemon respawns on the next query; killing it is the only cache-refresh
// primitive the store offers.
func (c *Client) RestartDaemon() {
	_, _, _, err := c.Runner.Run("pkill", "-x", Daemon)
	if err != nil {
		log.Debug().Msgf("xfconf.Client.RestartDaemon pkill err=%v", err)
	}
	if c.CacheRefresh > 0 {
		c.sleep(c.CacheRefresh)
	}
	log.Debug().Msgf("xfconf.Client.RestartDaemon done settle=%s", c.CacheRefresh)
}

func (c *Client) available() bool {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(Tool)
	return err == nil
}

func (c *Client) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}
