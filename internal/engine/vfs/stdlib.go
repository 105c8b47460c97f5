package vfs

import (
	"embed"
	"sort"
	"strings"
)

//go:embed stdlib/*.pkl
var stdlibFS embed.FS

// stdlibSource returns the embedded source for a `pkl:` module name.
func stdlibSource(name string) ([]byte, bool) {
	data, err := stdlibFS.ReadFile("stdlib/" + name + ".pkl")
	if err != nil {
		return nil, false
	}
	return data, true
}

// StdlibNames lists the bundled stdlib module names, sorted, for completion
// of `pkl:` imports.
func StdlibNames() []string {
	entries, err := stdlibFS.ReadDir("stdlib")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".pkl"))
	}
	sort.Strings(names)
	return names
}
