package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[entry]
method = "run"

[log]
verbosity = 2
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := Default()
	if c.Entry.Class != def.Entry.Class {
		t.Errorf("entry class = %q, want default %q", c.Entry.Class, def.Entry.Class)
	}
	if c.Entry.Method != "run" {
		t.Errorf("entry method = %q, want run", c.Entry.Method)
	}
	if !c.Entry.PrintResult {
		t.Error("print-result default lost")
	}
	if c.Target.DataLayout != def.Target.DataLayout {
		t.Errorf("data layout = %q", c.Target.DataLayout)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}
	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"syntax", "[entry\nclass = 1", "parse error"},
		{"unknown key", "[entry]\nklass = \"Main\"", "entry.klass"},
		{"empty entry", "[entry]\nclass = \"\"", "must not be empty"},
		{"negative verbosity", "[log]\nverbosity = -1", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.text)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[entry]\nclass = \"App\"\n")
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c == nil || c.Entry.Class != "App" {
		t.Fatalf("FindAndLoad = %+v, want the App configuration", c)
	}
}

func TestSetEntry(t *testing.T) {
	tests := []struct {
		selector      string
		class, method string
		ok            bool
	}{
		{"Main.main", "Main", "main", true},
		{"App.start", "App", "start", true},
		{"Main", "", "", false},
		{".main", "", "", false},
		{"Main.", "", "", false},
		{"A.b.c", "", "", false},
	}
	for _, tt := range tests {
		c := Default()
		err := c.SetEntry(tt.selector)
		if (err == nil) != tt.ok {
			t.Errorf("SetEntry(%q) error = %v", tt.selector, err)
			continue
		}
		if tt.ok && (c.Entry.Class != tt.class || c.Entry.Method != tt.method) {
			t.Errorf("SetEntry(%q) = %s.%s", tt.selector, c.Entry.Class, c.Entry.Method)
		}
	}
}

func TestOptionsAndOutputPath(t *testing.T) {
	c := Default()
	c.Entry.PrintResult = false
	c.Target.Triple = "x86_64-pc-linux-gnu"

	opts := c.Options()
	if opts.EntryClass != "Main" || opts.EntryMethod != "main" || opts.PrintResult {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.TargetTriple != "x86_64-pc-linux-gnu" {
		t.Errorf("triple = %q", opts.TargetTriple)
	}

	if got := c.OutputPath("prog/hello.cbor"); got != "prog/hello.ll" {
		t.Errorf("default output = %q", got)
	}
	c.Dir = "/work"
	c.Output.Path = "build/out.ll"
	if got := c.OutputPath("hello.cbor"); got != "/work/build/out.ll" {
		t.Errorf("relative output = %q", got)
	}
	c.Output.Path = "/tmp/x.ll"
	if got := c.OutputPath("hello.cbor"); got != "/tmp/x.ll" {
		t.Errorf("absolute output = %q", got)
	}
}
