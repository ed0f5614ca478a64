// Package config handles coolc.toml compiler configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	codegen "cool-codegen/codeGen"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "coolc.toml"

var log = commonlog.GetLogger("coolc.config")

// Config represents a coolc.toml file.
type Config struct {
	Entry  Entry  `toml:"entry"`
	Target Target `toml:"target"`
	Output Output `toml:"output"`
	Log    Log    `toml:"log"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Entry selects the method the generated main runs.
type Entry struct {
	Class       string `toml:"class"`
	Method      string `toml:"method"`
	PrintResult bool   `toml:"print-result"`
}

// Target is copied into the module header.
type Target struct {
	Triple     string `toml:"triple"`
	DataLayout string `toml:"data-layout"`
}

type Output struct {
	Path string `toml:"path"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	opts := codegen.DefaultOptions()
	return &Config{
		Entry: Entry{
			Class:       opts.EntryClass,
			Method:      opts.EntryMethod,
			PrintResult: opts.PrintResult,
		},
		Target: Target{
			Triple:     opts.TargetTriple,
			DataLayout: opts.DataLayout,
		},
	}
}

// Load parses the file at path. Keys the file leaves out keep their
// defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loaded configuration from %s", path)
	return c, nil
}

// FindAndLoad walks up from startDir to find a coolc.toml file,
// then loads it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) Validate() error {
	if c.Entry.Class == "" || c.Entry.Method == "" {
		return fmt.Errorf("entry class and method must not be empty")
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log verbosity %d is negative", c.Log.Verbosity)
	}
	return nil
}

// SetEntry applies a "Class.method" selector such as the one given on the
// command line.
func (c *Config) SetEntry(selector string) error {
	class, method, ok := strings.Cut(selector, ".")
	if !ok || class == "" || method == "" || strings.Contains(method, ".") {
		return fmt.Errorf("entry %q is not of the form Class.method", selector)
	}
	c.Entry.Class = class
	c.Entry.Method = method
	return nil
}

// Options converts the configuration into generator options.
func (c *Config) Options() codegen.Options {
	return codegen.Options{
		EntryClass:   c.Entry.Class,
		EntryMethod:  c.Entry.Method,
		PrintResult:  c.Entry.PrintResult,
		TargetTriple: c.Target.Triple,
		DataLayout:   c.Target.DataLayout,
	}
}

// OutputPath is where the module for input is written. A relative
// output.path is taken from the configuration file's directory.
func (c *Config) OutputPath(input string) string {
	if c.Output.Path != "" {
		if filepath.IsAbs(c.Output.Path) || c.Dir == "" {
			return c.Output.Path
		}
		return filepath.Join(c.Dir, c.Output.Path)
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".ll"
}
