// Package scenario drives debugging environments from YAML fixtures.
//
// A Program describes the classes loaded into the method directory. A Script
// pairs a program with an ordered list of agent steps (set, clear, unload and
// so on) and records what each step returned.
package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
	"github.com/coral-mesh/coral-bp/internal/safe"
)

// AliasSpec declares a default method inherited by Class under Name,
// resolving to Target ("Class.method").
type AliasSpec struct {
	Class  string `yaml:"class"`
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

// Program is the set of classes a script runs against.
type Program struct {
	Classes []classdir.ClassSpec `yaml:"classes"`
	Aliases []AliasSpec          `yaml:"aliases,omitempty"`
}

// LoadProgram reads a program from a YAML file.
func LoadProgram(path string) (*Program, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return ParseProgram(data)
}

// ParseProgram parses a YAML program.
func ParseProgram(data []byte) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	return &p, nil
}

// Merge appends other's classes and aliases.
func (p *Program) Merge(other *Program) {
	if other == nil {
		return
	}
	p.Classes = append(p.Classes, other.Classes...)
	p.Aliases = append(p.Aliases, other.Aliases...)
}

// Load defines every class, then every alias, in dir.
// Aliases are added in order, so an alias may target an earlier alias.
func (p *Program) Load(tok *mutator.Token, dir *classdir.Directory) error {
	for _, spec := range p.Classes {
		if _, err := dir.DefineClass(tok, spec); err != nil {
			return fmt.Errorf("define class %q: %w", spec.Name, err)
		}
	}

	for _, alias := range p.Aliases {
		class, err := dir.LookupClass(tok, alias.Class)
		if err != nil {
			return fmt.Errorf("alias %s.%s: %w", alias.Class, alias.Name, err)
		}
		target, err := dir.LookupMethod(tok, alias.Target)
		if err != nil {
			return fmt.Errorf("alias %s.%s target: %w", alias.Class, alias.Name, err)
		}
		if _, err := dir.AddDefaultAlias(tok, class, alias.Name, target); err != nil {
			return fmt.Errorf("alias %s.%s: %w", alias.Class, alias.Name, err)
		}
	}
	return nil
}
