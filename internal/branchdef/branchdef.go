// Package branchdef loads sync branch definitions: which source endpoint a
// branch polls, where its artifacts are archived and downloaded, and which
// warehouse table it loads.
//
// Definitions come from a YAML file checked against an embedded CUE schema,
// or from Defaults.
package branchdef

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/filesync/internal/sqlgen"
)

//go:embed schema.cue
var schemaSource []byte

// Definition describes one sync branch.
type Definition struct {
	// Name identifies the branch on the command line and in logs.
	Name string `yaml:"name" json:"name"`
	// Endpoint is the source API endpoint listing unviewed files.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Prefix is the archive key prefix.
	Prefix string `yaml:"prefix" json:"prefix"`
	// Dir is the download directory, relative to the download root.
	Dir string `yaml:"dir" json:"dir"`
	// Table is loaded in the staging, raw and history schemas.
	Table string `yaml:"table" json:"table"`
	// BinarySuffixes overrides the byte-compared file types.
	BinarySuffixes []string `yaml:"binary_suffixes,omitempty" json:"binary_suffixes,omitempty"`
}

// File is the top-level document of a definitions file.
type File struct {
	Branches []Definition `yaml:"branches" json:"branches"`
}

// Defaults returns the built-in branches.
func Defaults() []Definition {
	return []Definition{
		{
			Name:     "unviewed_files",
			Endpoint: "GetUnviewedFiles",
			Prefix:   "unviewed_files",
			Dir:      "unviewed_files",
			Table:    "UNVIEWED_FILES",
		},
		{
			Name:     "unviewed_eram_files",
			Endpoint: "GetUnviewedERAMFiles",
			Prefix:   "unviewed_eram_files",
			Dir:      "unviewed_Eram_files",
			Table:    "UNVIEWED_ERAM_FILES",
		},
	}
}

// Load reads definitions from path, or returns Defaults when path is empty.
func Load(path string) ([]Definition, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read branch definitions: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes and validates a definitions document.
func Parse(data []byte) ([]Definition, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := Validate(f.Branches); err != nil {
		return nil, err
	}
	return f.Branches, nil
}

// Validate checks defs against the schema, then checks that names,
// directories and tables are unique. Branches run concurrently, so two
// branches sharing a table would interleave their loads.
func Validate(defs []Definition) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile branch schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(File{Branches: defs}))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid branch definitions: %w", err)
	}

	names := make(map[string]bool)
	dirs := make(map[string]bool)
	tables := make(map[string]bool)
	for _, d := range defs {
		if names[d.Name] {
			return fmt.Errorf("duplicate branch name %q", d.Name)
		}
		names[d.Name] = true

		if dirs[d.Dir] {
			return fmt.Errorf("branch %q: download dir %q is used by another branch", d.Name, d.Dir)
		}
		dirs[d.Dir] = true

		table := sqlgen.Canonical(d.Table)
		if tables[table] {
			return fmt.Errorf("branch %q: table %s is loaded by another branch", d.Name, table)
		}
		tables[table] = true
	}
	return nil
}

// Select returns the definitions named in names, in the order given. An
// empty names selects all of defs.
func Select(defs []Definition, names []string) ([]Definition, error) {
	if len(names) == 0 {
		return defs, nil
	}
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	out := make([]Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown branch %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
