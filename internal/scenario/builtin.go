package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// DefaultName is the scenario used when none is given.
const DefaultName = "office"

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// Builtin returns the embedded scenario called name.
func Builtin(name string) (*Scenario, error) {
	raw, err := builtinFS.ReadFile(path.Join("scenarios", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: not built in (have %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	return s, nil
}

// BuiltinNames lists the embedded scenarios, sorted.
func BuiltinNames() []string {
	entries, _ := fs.ReadDir(builtinFS, "scenarios")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Default returns the built-in default scenario.
func Default() (*Scenario, error) { return Builtin(DefaultName) }

// Resolve loads a file when ref names an existing path, and a built-in
// scenario otherwise.
func Resolve(ref string) (*Scenario, error) {
	if ref == "" {
		return Default()
	}
	if _, err := os.Stat(ref); err == nil {
		return Load(ref)
	}
	return Builtin(ref)
}
