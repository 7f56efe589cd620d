// Package capture dumps replication deltas to disk for offline
// inspection. Arming is cheap and safe from any goroutine; the actual
// write happens on the sync tick, through the client's outbound hook,
// and disarms itself after one dump.
package capture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"tumble/engine/internal/telemetry"
)

// Capture writes the next observed delta as three sibling files: the
// wire serialization (diff.bin), pretty JSON (diff.json) and YAML
// (diff.yaml). Later dumps overwrite earlier ones.
type Capture struct {
	dir    string
	logger telemetry.Logger
	armed  atomic.Bool
}

// New returns a capture writing into dir. A nil logger silences it.
func New(dir string, logger telemetry.Logger) *Capture {
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Capture{dir: dir, logger: logger}
}

// Arm requests a dump of the next observed delta.
func (c *Capture) Arm() { c.armed.Store(true) }

// Armed reports whether a dump is pending.
func (c *Capture) Armed() bool { return c.armed.Load() }

// Observe dumps d when a dump is pending, then disarms. Wire it into
// the sync client's outbound hook.
func (c *Capture) Observe(d any) {
	if !c.armed.CompareAndSwap(true, false) {
		return
	}
	if err := c.dump(d); err != nil {
		c.logger.Printf("delta capture failed: %v", err)
		return
	}
	c.logger.Printf("delta captured to %s", c.dir)
}

func (c *Capture) dump(d any) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	raw, err := cbor.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.dir, "diff.bin"), raw, 0o644); err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.dir, "diff.json"), pretty, 0o644); err != nil {
		return err
	}

	text, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, "diff.yaml"), text, 0o644)
}
