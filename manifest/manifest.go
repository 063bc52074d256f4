// Package manifest handles stackvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up next to a program.
const FileName = "stackvm.toml"

// Manifest represents a stackvm.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Machine Machine `toml:"machine"`

	// Dir is the directory containing the stackvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where the program lives.
type Source struct {
	Entry string `toml:"entry"` // assembler source file, relative to Dir
}

// Machine configures execution limits and observability.
type Machine struct {
	StackLimit int    `toml:"stack-limit"` // operand stack depth cap, 0 = default
	MaxSteps   int    `toml:"max-steps"`   // instruction budget, 0 = unlimited
	Trace      string `toml:"trace"`       // CBOR trace output file, empty = off
}

// Load parses a stackvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a stackvm.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	if m.Machine.StackLimit < 0 {
		return fmt.Errorf("machine.stack-limit must not be negative, got %d", m.Machine.StackLimit)
	}
	if m.Machine.MaxSteps < 0 {
		return fmt.Errorf("machine.max-steps must not be negative, got %d", m.Machine.MaxSteps)
	}
	return nil
}

// EntryPath returns the absolute path of the configured entry program,
// or "" when no entry is configured.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// TracePath returns the absolute path of the configured trace output,
// or "" when tracing is off.
func (m *Manifest) TracePath() string {
	if m.Machine.Trace == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Machine.Trace)
}
