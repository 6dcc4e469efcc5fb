// Package plan loads run plans: YAML files naming the test cases of a run
// and the settings they run with.
//
//	name: nightly
//	level: exhaustive
//	fixtures: /var/lib/gosct/fixtures
//	tests:
//	  - tcg2
//	  - SecureBoot.VariableUpdates
package plan

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/foxboron/go-uefi-sct/sct/driver"
)

type Plan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Level overrides the configured level when set.
	Level string `yaml:"level,omitempty"`
	// Fixtures overrides the fixture directory. Relative paths are resolved
	// against the directory of the plan file.
	Fixtures string `yaml:"fixtures,omitempty"`
	// Tests are suite names, test case names or test case GUIDs.
	Tests []string `yaml:"tests"`

	level driver.Level
}

// RunLevel returns the level of the plan, or def when the plan sets none.
func (p *Plan) RunLevel(def driver.Level) driver.Level {
	if p.Level == "" {
		return def
	}
	return p.level
}

// LoadError describes a plan that could not be loaded.
type LoadError struct {
	File    string
	Line    int
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	where := e.File
	if where == "" {
		where = "<plan>"
	}
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, e.Line)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", where, e.Message, e.Cause)
	}
	return where + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes and validates a plan. Unknown keys are rejected.
func Parse(data []byte) (*Plan, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return nil, &LoadError{Message: "empty plan"}
		}
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	var p Plan
	strict := yaml.NewDecoder(bytes.NewReader(data))
	strict.KnownFields(true)
	if err := strict.Decode(&p); err != nil {
		return nil, &LoadError{Message: "invalid plan", Cause: err}
	}

	if len(p.Tests) == 0 {
		return nil, &LoadError{Line: lineOf(&root, "tests"), Message: "plan must name at least one test"}
	}
	if p.Level != "" {
		l, err := driver.ParseLevel(p.Level)
		if err != nil {
			return nil, &LoadError{Line: lineOf(&root, "level"), Message: "invalid level", Cause: err}
		}
		p.level = l
	}
	return &p, nil
}

// Load reads a plan file.
func Load(fs afero.Fs, path string) (*Plan, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	p, err := Parse(data)
	if err != nil {
		le := err.(*LoadError)
		le.File = path
		return nil, le
	}
	if p.Fixtures != "" && !filepath.IsAbs(p.Fixtures) {
		p.Fixtures = filepath.Join(filepath.Dir(path), p.Fixtures)
	}
	return p, nil
}

// lineOf returns the line of a top level key, or 0.
func lineOf(root *yaml.Node, key string) int {
	n := root
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return 0
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i].Line
		}
	}
	return 0
}
