// Package config loads the instrumentation pass's TOML configuration: which
// functions and methods to monitor, the collector endpoint, and the machine
// identity embedded in every emitted record.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/cwbudde/go-instrument/internal/errors"
)

// Kind is the closed set of rewrite kinds a config entry can request.
// Values are kept identical to the wire/config strings used elsewhere so a
// TOML file written against the original tool still decodes unchanged.
type Kind string

const (
	KindExternCrateItem     Kind = "ExternCrateItem"
	KindGlobalScope         Kind = "GlobalScope"
	KindLocalScope          Kind = "LocalScope"
	KindInstCallForFunction Kind = "InstCallForFunction"
	KindInstCallForMethod   Kind = "InstCallForMethod"
)

// CodeMonitorEntry names one function or method of interest and the kind of
// rewrite to apply at its call sites (or declaration, for scope kinds).
type CodeMonitorEntry struct {
	Name string `toml:"name"`
	Kind Kind   `toml:"kind"`
}

// SpecialBehaviourEntry is a free-form key/value escape hatch for
// per-deployment tuning that doesn't warrant its own field.
type SpecialBehaviourEntry struct {
	Key   string `toml:"key"`
	Value string `toml:"value"`
}

// Config is the full decoded instrumentation configuration.
type Config struct {
	CollectorIP      string                  `toml:"collector_ip"`
	CollectorPort    uint16                  `toml:"collector_port"`
	MachineID        string                  `toml:"machine_id"`
	Code2Monitor     []CodeMonitorEntry      `toml:"code_2_monitor"`
	SpecialBehaviour []SpecialBehaviourEntry `toml:"special_behaviour"`
}

// DefaultPath returns the default configuration file location,
// "~/.goinst/instconfig.toml", resolved against the current user's home
// directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".goinst", "instconfig.toml"), nil
}

// Load reads and decodes a configuration file at path. An empty path
// resolves to DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		resolved, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{Message: fmt.Sprintf("reading config: %v", err), File: path}
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.ConfigError{Message: fmt.Sprintf("parsing TOML: %v", err), File: path}
	}

	if err := cfg.Validate(); err != nil {
		if cerr, ok := err.(*errors.ConfigError); ok {
			cerr.File = path
			return nil, cerr
		}
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the decoded configuration for the fatal-at-start
// conditions: a malformed collector address or an unrecognized kind string.
// Failures are reported as *errors.ConfigError, matching the error-handling
// design's treatment of configuration problems (fatal at CLI start, no AST
// position available).
func (c *Config) Validate() error {
	if c.CollectorIP == "" {
		return &errors.ConfigError{Message: "collector_ip must not be empty"}
	}
	if net.ParseIP(c.CollectorIP) == nil {
		return &errors.ConfigError{Message: fmt.Sprintf("collector_ip %q is not a valid IP address", c.CollectorIP)}
	}
	if c.CollectorPort == 0 {
		return &errors.ConfigError{Message: "collector_port must be a nonzero port number"}
	}
	if c.MachineID == "" {
		return &errors.ConfigError{Message: "machine_id must not be empty"}
	}

	for i, entry := range c.Code2Monitor {
		switch entry.Kind {
		case KindExternCrateItem, KindGlobalScope, KindLocalScope, KindInstCallForFunction, KindInstCallForMethod:
		default:
			return &errors.ConfigError{
				Message: fmt.Sprintf("code_2_monitor[%d]: unknown kind %q for %q", i, entry.Kind, entry.Name),
			}
		}
	}

	return nil
}

// Lookup returns the configured entries matching the given canonical name,
// in declaration order. A name may be configured under more than one kind —
// per SPEC_FULL §9, LocalScope and a call-site kind on the same name both
// fire; there is no mutual exclusion.
func (c *Config) Lookup(name string) []CodeMonitorEntry {
	var matches []CodeMonitorEntry
	for _, entry := range c.Code2Monitor {
		if entry.Name == name {
			matches = append(matches, entry)
		}
	}
	return matches
}

// SpecialBehaviourValue returns the value configured for key, and whether it
// was present at all.
func (c *Config) SpecialBehaviourValue(key string) (string, bool) {
	for _, entry := range c.SpecialBehaviour {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return "", false
}
