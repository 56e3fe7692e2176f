package classdir

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
	"github.com/coral-mesh/coral-bp/internal/testutil"
)

func newTestDirectory(t *testing.T) (*Directory, *mutator.Token) {
	t.Helper()
	lock := mutator.New(mutator.WithAssertions(true))
	return New(lock, testutil.NewTestLogger(t)), testutil.HoldLock(t, lock)
}

func TestDirectory_DefineClass(t *testing.T) {
	d, tok := newTestDirectory(t)

	t.Run("successful define", func(t *testing.T) {
		cid, err := d.DefineClass(tok, ClassSpec{
			Name: "app.Checkout",
			Methods: []MethodSpec{
				{Name: "run", CodeUnits: 12},
				{Name: "total", CodeUnits: 4},
			},
		})
		require.NoError(t, err)
		assert.False(t, cid.IsNil())

		c, ok := d.Class(tok, cid)
		require.True(t, ok)
		assert.Equal(t, "app.Checkout", c.Name())
		assert.Len(t, c.Methods(), 2)

		mid, err := d.LookupMethod(tok, "app.Checkout.run")
		require.NoError(t, err)
		m, ok := d.ResolveCanonical(tok, mid)
		require.True(t, ok)
		assert.Equal(t, uint32(12), m.BytecodeLength())
		assert.Equal(t, cid, m.OwningClass())
		assert.Equal(t, "app.Checkout.run", m.FullName())
		assert.False(t, m.IsAlias())
	})

	t.Run("duplicate class name", func(t *testing.T) {
		_, err := d.DefineClass(tok, ClassSpec{Name: "app.Checkout"})
		assert.ErrorIs(t, err, ErrClassExists)
	})

	t.Run("invalid specs", func(t *testing.T) {
		_, err := d.DefineClass(tok, ClassSpec{Name: ""})
		assert.ErrorIs(t, err, ErrInvalidSpec)

		_, err = d.DefineClass(tok, ClassSpec{
			Name:    "Dup",
			Methods: []MethodSpec{{Name: "a"}, {Name: "a"}},
		})
		assert.ErrorIs(t, err, ErrInvalidSpec)

		_, err = d.DefineClass(tok, ClassSpec{
			Name:    "Dotted",
			Methods: []MethodSpec{{Name: "a.b"}},
		})
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})
}

func TestDirectory_ResolveCanonical(t *testing.T) {
	d, tok := newTestDirectory(t)

	iface, err := d.DefineClass(tok, ClassSpec{
		Name:    "Greeter",
		Methods: []MethodSpec{{Name: "greet", CodeUnits: 8}},
	})
	require.NoError(t, err)
	impl, err := d.DefineClass(tok, ClassSpec{Name: "EnglishGreeter"})
	require.NoError(t, err)
	sub, err := d.DefineClass(tok, ClassSpec{Name: "LoudGreeter"})
	require.NoError(t, err)

	concrete, err := d.LookupMethod(tok, "Greeter.greet")
	require.NoError(t, err)

	alias, err := d.AddDefaultAlias(tok, impl, "greet", concrete)
	require.NoError(t, err)
	aliasOfAlias, err := d.AddDefaultAlias(tok, sub, "greet", alias)
	require.NoError(t, err)

	for _, id := range []MethodID{concrete, alias, aliasOfAlias} {
		m, ok := d.ResolveCanonical(tok, id)
		require.True(t, ok, "resolve %s", id)
		assert.Equal(t, concrete, m.ID())
		assert.Equal(t, iface, m.OwningClass())
	}

	raw, ok := d.Method(tok, aliasOfAlias)
	require.True(t, ok)
	assert.True(t, raw.IsAlias())
	assert.Equal(t, sub, raw.OwningClass())

	t.Run("nil token", func(t *testing.T) {
		_, ok := d.ResolveCanonical(tok, MethodID{})
		assert.False(t, ok)
	})

	t.Run("alias name collision", func(t *testing.T) {
		_, err := d.AddDefaultAlias(tok, impl, "greet", concrete)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	})

	t.Run("alias to unknown target", func(t *testing.T) {
		_, err := d.AddDefaultAlias(tok, impl, "other", MethodID{})
		assert.ErrorIs(t, err, ErrMethodNotFound)
	})
}

func TestDirectory_Redefine(t *testing.T) {
	d, tok := newTestDirectory(t)

	cid, err := d.DefineClass(tok, ClassSpec{
		Name:    "Worker",
		Methods: []MethodSpec{{Name: "step", CodeUnits: 5}},
	})
	require.NoError(t, err)
	old, err := d.LookupMethod(tok, "Worker.step")
	require.NoError(t, err)

	var notified []Reason
	d.Subscribe(tok, ListenerFunc(func(tok *mutator.Token, class ClassID, reason Reason) {
		assert.Equal(t, cid, class)
		// Old tokens still resolve while listeners run.
		_, ok := d.ResolveCanonical(tok, old)
		assert.True(t, ok)
		notified = append(notified, reason)
	}))

	require.NoError(t, d.Redefine(tok, cid, []MethodSpec{{Name: "step", CodeUnits: 9}}))
	assert.Equal(t, []Reason{ReasonRedefine}, notified)

	_, ok := d.ResolveCanonical(tok, old)
	assert.False(t, ok, "redefinition must retire the old token")

	fresh, err := d.LookupMethod(tok, "Worker.step")
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)
	m, ok := d.ResolveCanonical(tok, fresh)
	require.True(t, ok)
	assert.Equal(t, uint32(9), m.BytecodeLength())

	t.Run("unknown class", func(t *testing.T) {
		assert.ErrorIs(t, d.Redefine(tok, ClassID{}, nil), ErrClassNotFound)
	})
}

func TestDirectory_Unload(t *testing.T) {
	d, tok := newTestDirectory(t)

	base, err := d.DefineClass(tok, ClassSpec{
		Name:    "Base",
		Methods: []MethodSpec{{Name: "hook", CodeUnits: 3}},
	})
	require.NoError(t, err)
	child, err := d.DefineClass(tok, ClassSpec{Name: "Child"})
	require.NoError(t, err)

	hook, err := d.LookupMethod(tok, "Base.hook")
	require.NoError(t, err)
	alias, err := d.AddDefaultAlias(tok, child, "hook", hook)
	require.NoError(t, err)

	var reasons []Reason
	d.Subscribe(tok, ListenerFunc(func(_ *mutator.Token, _ ClassID, reason Reason) {
		reasons = append(reasons, reason)
	}))

	require.NoError(t, d.Unload(tok, base))
	assert.Equal(t, []Reason{ReasonUnload}, reasons)

	_, ok := d.ResolveCanonical(tok, hook)
	assert.False(t, ok)
	_, ok = d.ResolveCanonical(tok, alias)
	assert.False(t, ok, "alias of an unloaded method must not resolve")

	_, err = d.LookupClass(tok, "Base")
	assert.ErrorIs(t, err, ErrClassNotFound)
	assert.ErrorIs(t, d.Unload(tok, base), ErrClassNotFound)

	classes := d.Classes(tok)
	require.Len(t, classes, 1)
	assert.Equal(t, "Child", classes[0].Name())
}

func TestDirectory_LookupMethod(t *testing.T) {
	d, tok := newTestDirectory(t)
	_, err := d.DefineClass(tok, ClassSpec{
		Name:    "pkg.Main",
		Methods: []MethodSpec{{Name: "main", CodeUnits: 1}},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "qualified class", input: "pkg.Main.main"},
		{name: "no dot", input: "main", wantErr: ErrMethodNotFound},
		{name: "trailing dot", input: "pkg.Main.", wantErr: ErrMethodNotFound},
		{name: "unknown class", input: "pkg.Other.main", wantErr: ErrClassNotFound},
		{name: "unknown method", input: "pkg.Main.exit", wantErr: ErrMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.LookupMethod(tok, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, id.IsNil())
		})
	}
}

func TestDirectory_RequiresLock(t *testing.T) {
	lock := mutator.New()
	d := New(lock, zerolog.Nop())

	t.Run("released token", func(t *testing.T) {
		tok := lock.Acquire()
		lock.Release(tok)

		assert.Panics(t, func() {
			_, _ = d.DefineClass(tok, ClassSpec{Name: "Late"})
		})
	})

	t.Run("token of another lock", func(t *testing.T) {
		other := mutator.New()
		tok := other.Acquire()
		defer other.Release(tok)

		assert.Panics(t, func() {
			_, _ = d.DefineClass(tok, ClassSpec{Name: "Foreign"})
		})
		assert.Panics(t, func() {
			_, _ = d.ResolveCanonical(tok, MethodID{})
		})
		assert.False(t, lock.Held())
	})
}
