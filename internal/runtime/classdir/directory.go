// Package classdir implements the method directory of the runtime.
//
// The directory owns class and method metadata and hands out opaque,
// generation-checked tokens (ClassID, MethodID) for them. It resolves a
// method token to its canonical method, which for inherited/default method
// aliases is the single concrete implementation the alias stands for.
//
// Redefining a class issues new tokens for all of its methods and retires the
// old ones; unloading a class retires the class and everything it declares.
// Subscribed listeners are notified before retirement, while the old tokens
// still resolve, so they can drop anything that refers to them.
//
// Every operation requires the runtime exclusivity lock.
package classdir

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-bp/internal/runtime/arena"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

var (
	// ErrClassExists is returned when defining a class whose name is taken.
	ErrClassExists = errors.New("class already defined")
	// ErrClassNotFound is returned for unknown or retired classes.
	ErrClassNotFound = errors.New("class not found")
	// ErrMethodNotFound is returned for unknown or retired methods.
	ErrMethodNotFound = errors.New("method not found")
	// ErrInvalidSpec is returned for malformed class or method specs.
	ErrInvalidSpec = errors.New("invalid class spec")
)

// ClassID identifies a loaded class.
type ClassID arena.Handle

// IsNil reports whether id is the nil class token.
func (id ClassID) IsNil() bool { return arena.Handle(id).IsNil() }

func (id ClassID) String() string { return "class" + arena.Handle(id).String() }

// MethodID identifies a method. The zero value is the nil method token.
type MethodID arena.Handle

// IsNil reports whether id is the nil method token.
func (id MethodID) IsNil() bool { return arena.Handle(id).IsNil() }

func (id MethodID) String() string { return "method" + arena.Handle(id).String() }

// Reason tells listeners why a class is being retired.
type Reason string

const (
	ReasonUnload   Reason = "unload"
	ReasonRedefine Reason = "redefine"
)

// Listener is notified before a class's method tokens are retired.
type Listener interface {
	ClassRetiring(tok *mutator.Token, class ClassID, reason Reason)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(tok *mutator.Token, class ClassID, reason Reason)

// ClassRetiring calls f.
func (f ListenerFunc) ClassRetiring(tok *mutator.Token, class ClassID, reason Reason) {
	f(tok, class, reason)
}

// MethodSpec describes a concrete method.
type MethodSpec struct {
	Name string `yaml:"name"`
	// CodeUnits is the bytecode length in code units.
	CodeUnits uint32 `yaml:"code_units"`
}

// ClassSpec describes a class to define.
type ClassSpec struct {
	Name    string       `yaml:"name"`
	Methods []MethodSpec `yaml:"methods"`
}

// Class is the directory's record of a loaded class.
type Class struct {
	id      ClassID
	name    string
	methods []MethodID
	aliases []MethodID
}

// ID returns the class token.
func (c *Class) ID() ClassID { return c.id }

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Methods returns the tokens of the concrete methods declared by the class.
func (c *Class) Methods() []MethodID {
	return append([]MethodID(nil), c.methods...)
}

// Aliases returns the tokens of the default/inherited aliases in the class.
func (c *Class) Aliases() []MethodID {
	return append([]MethodID(nil), c.aliases...)
}

// Method is the directory's record of a method.
type Method struct {
	id        MethodID
	name      string
	class     ClassID
	className string
	codeUnits uint32
	// target is set for aliases and names the concrete method.
	target MethodID
}

// ID returns the method token.
func (m *Method) ID() MethodID { return m.id }

// Name returns the simple method name.
func (m *Method) Name() string { return m.name }

// FullName returns "Class.method".
func (m *Method) FullName() string { return m.className + "." + m.name }

// BytecodeLength returns the bytecode length in code units.
func (m *Method) BytecodeLength() uint32 { return m.codeUnits }

// OwningClass returns the declaring class.
func (m *Method) OwningClass() ClassID { return m.class }

// IsAlias reports whether m is a default/inherited alias of another method.
func (m *Method) IsAlias() bool { return !m.target.IsNil() }

// Directory is the runtime's method directory.
type Directory struct {
	lock      *mutator.Lock
	logger    zerolog.Logger
	classes   *arena.Arena[*Class]
	methods   *arena.Arena[*Method]
	byName    map[string]ClassID
	listeners []Listener
}

// New creates an empty directory guarded by lock.
func New(lock *mutator.Lock, logger zerolog.Logger) *Directory {
	return &Directory{
		lock:    lock,
		logger:  logger.With().Str("component", "classdir").Logger(),
		classes: arena.New[*Class](),
		methods: arena.New[*Method](),
		byName:  make(map[string]ClassID),
	}
}

// Subscribe registers a lifecycle listener.
func (d *Directory) Subscribe(tok *mutator.Token, l Listener) {
	tok.AssertHolds(d.lock)
	d.listeners = append(d.listeners, l)
}

// DefineClass loads a class with the given concrete methods.
func (d *Directory) DefineClass(tok *mutator.Token, spec ClassSpec) (ClassID, error) {
	tok.AssertHolds(d.lock)

	if err := validateClassSpec(spec); err != nil {
		return ClassID{}, err
	}
	if _, exists := d.byName[spec.Name]; exists {
		return ClassID{}, fmt.Errorf("%w: %s", ErrClassExists, spec.Name)
	}

	c := &Class{name: spec.Name}
	c.id = ClassID(d.classes.Insert(c))
	c.methods = d.insertMethods(c, spec.Methods)
	d.byName[spec.Name] = c.id

	d.logger.Debug().
		Str("class", spec.Name).
		Int("methods", len(spec.Methods)).
		Msg("Class defined")

	return c.id, nil
}

// AddDefaultAlias adds a method named name to class that stands for target,
// such as a default interface method copied into an implementing class.
// Aliases of aliases collapse to the final concrete method.
func (d *Directory) AddDefaultAlias(tok *mutator.Token, class ClassID, name string, target MethodID) (MethodID, error) {
	tok.AssertHolds(d.lock)

	c, ok := d.classes.Get(arena.Handle(class))
	if !ok {
		return MethodID{}, fmt.Errorf("%w: %s", ErrClassNotFound, class)
	}
	if name == "" || strings.ContainsAny(name, ". ") {
		return MethodID{}, fmt.Errorf("%w: invalid alias name %q", ErrInvalidSpec, name)
	}
	if d.findInClass(c, name) != nil {
		return MethodID{}, fmt.Errorf("%w: duplicate method %s.%s", ErrInvalidSpec, c.name, name)
	}

	concrete, ok := d.ResolveCanonical(tok, target)
	if !ok {
		return MethodID{}, fmt.Errorf("%w: alias target %s", ErrMethodNotFound, target)
	}

	m := &Method{
		name:      name,
		class:     c.id,
		className: c.name,
		codeUnits: concrete.codeUnits,
		target:    concrete.id,
	}
	m.id = MethodID(d.methods.Insert(m))
	c.aliases = append(c.aliases, m.id)

	return m.id, nil
}

// ResolveCanonical resolves id to its canonical method.
// It returns false for the nil token, retired tokens and aliases whose
// concrete method has been retired.
func (d *Directory) ResolveCanonical(tok *mutator.Token, id MethodID) (*Method, bool) {
	tok.AssertHolds(d.lock)

	m, ok := d.methods.Get(arena.Handle(id))
	if !ok {
		return nil, false
	}
	if m.target.IsNil() {
		return m, true
	}
	return d.methods.Get(arena.Handle(m.target))
}

// Method returns the record for id without canonicalizing it.
func (d *Directory) Method(tok *mutator.Token, id MethodID) (*Method, bool) {
	tok.AssertHolds(d.lock)
	return d.methods.Get(arena.Handle(id))
}

// Class returns the record for id.
func (d *Directory) Class(tok *mutator.Token, id ClassID) (*Class, bool) {
	tok.AssertHolds(d.lock)
	return d.classes.Get(arena.Handle(id))
}

// LookupClass finds a loaded class by name.
func (d *Directory) LookupClass(tok *mutator.Token, name string) (ClassID, error) {
	tok.AssertHolds(d.lock)

	id, ok := d.byName[name]
	if !ok {
		return ClassID{}, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return id, nil
}

// LookupMethod finds a method or alias by its "Class.method" name.
func (d *Directory) LookupMethod(tok *mutator.Token, fullName string) (MethodID, error) {
	tok.AssertHolds(d.lock)

	dot := strings.LastIndex(fullName, ".")
	if dot <= 0 || dot == len(fullName)-1 {
		return MethodID{}, fmt.Errorf("%w: malformed method name %q", ErrMethodNotFound, fullName)
	}
	className, methodName := fullName[:dot], fullName[dot+1:]

	cid, ok := d.byName[className]
	if !ok {
		return MethodID{}, fmt.Errorf("%w: %s", ErrClassNotFound, className)
	}
	c, _ := d.classes.Get(arena.Handle(cid))

	m := d.findInClass(c, methodName)
	if m == nil {
		return MethodID{}, fmt.Errorf("%w: %s", ErrMethodNotFound, fullName)
	}
	return m.id, nil
}

// Classes returns all loaded classes sorted by name.
func (d *Directory) Classes(tok *mutator.Token) []*Class {
	tok.AssertHolds(d.lock)

	classes := make([]*Class, 0, d.classes.Len())
	d.classes.Each(func(_ arena.Handle, c *Class) {
		classes = append(classes, c)
	})
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].name < classes[j].name
	})
	return classes
}

// Redefine replaces the methods of class. Every method gets a new token and
// the previous tokens stop resolving. Listeners run before the old tokens
// are retired.
func (d *Directory) Redefine(tok *mutator.Token, class ClassID, methods []MethodSpec) error {
	tok.AssertHolds(d.lock)

	c, ok := d.classes.Get(arena.Handle(class))
	if !ok {
		return fmt.Errorf("%w: %s", ErrClassNotFound, class)
	}
	if err := validateClassSpec(ClassSpec{Name: c.name, Methods: methods}); err != nil {
		return err
	}
	for _, spec := range methods {
		for _, aid := range c.aliases {
			if a, ok := d.methods.Get(arena.Handle(aid)); ok && a.name == spec.Name {
				return fmt.Errorf("%w: method %s.%s collides with alias", ErrInvalidSpec, c.name, spec.Name)
			}
		}
	}

	d.notify(tok, c.id, ReasonRedefine)

	old := c.methods
	c.methods = d.insertMethods(c, methods)
	for _, id := range old {
		d.methods.Remove(arena.Handle(id))
	}

	d.logger.Debug().
		Str("class", c.name).
		Int("retired_methods", len(old)).
		Int("methods", len(c.methods)).
		Msg("Class redefined")

	return nil
}

// Unload retires class together with its methods and aliases.
func (d *Directory) Unload(tok *mutator.Token, class ClassID) error {
	tok.AssertHolds(d.lock)

	c, ok := d.classes.Get(arena.Handle(class))
	if !ok {
		return fmt.Errorf("%w: %s", ErrClassNotFound, class)
	}

	d.notify(tok, c.id, ReasonUnload)

	for _, id := range c.methods {
		d.methods.Remove(arena.Handle(id))
	}
	for _, id := range c.aliases {
		d.methods.Remove(arena.Handle(id))
	}
	d.classes.Remove(arena.Handle(c.id))
	delete(d.byName, c.name)

	d.logger.Debug().Str("class", c.name).Msg("Class unloaded")
	return nil
}

func (d *Directory) notify(tok *mutator.Token, class ClassID, reason Reason) {
	for _, l := range d.listeners {
		l.ClassRetiring(tok, class, reason)
	}
}

func (d *Directory) insertMethods(c *Class, specs []MethodSpec) []MethodID {
	ids := make([]MethodID, 0, len(specs))
	for _, spec := range specs {
		m := &Method{
			name:      spec.Name,
			class:     c.id,
			className: c.name,
			codeUnits: spec.CodeUnits,
		}
		m.id = MethodID(d.methods.Insert(m))
		ids = append(ids, m.id)
	}
	return ids
}

func (d *Directory) findInClass(c *Class, name string) *Method {
	for _, id := range c.methods {
		if m, ok := d.methods.Get(arena.Handle(id)); ok && m.name == name {
			return m
		}
	}
	for _, id := range c.aliases {
		if m, ok := d.methods.Get(arena.Handle(id)); ok && m.name == name {
			return m
		}
	}
	return nil
}

func validateClassSpec(spec ClassSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: class name cannot be empty", ErrInvalidSpec)
	}
	if strings.Contains(spec.Name, " ") {
		return fmt.Errorf("%w: class name %q contains spaces", ErrInvalidSpec, spec.Name)
	}

	seen := make(map[string]struct{}, len(spec.Methods))
	for _, m := range spec.Methods {
		if m.Name == "" || strings.ContainsAny(m.Name, ". ") {
			return fmt.Errorf("%w: invalid method name %q in %s", ErrInvalidSpec, m.Name, spec.Name)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("%w: duplicate method %s.%s", ErrInvalidSpec, spec.Name, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}
