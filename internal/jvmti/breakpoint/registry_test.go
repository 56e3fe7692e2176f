package breakpoint

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
	"github.com/coral-mesh/coral-bp/internal/testutil"
)

type fixture struct {
	tok *mutator.Token
	dir *classdir.Directory
	reg *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lock := mutator.New(mutator.WithAssertions(true))
	dir := classdir.New(lock, testutil.NewTestLogger(t))
	return &fixture{tok: testutil.HoldLock(t, lock), dir: dir, reg: NewRegistry(lock, dir)}
}

func (f *fixture) defineClass(t *testing.T, name string, methods ...classdir.MethodSpec) classdir.ClassID {
	t.Helper()
	id, err := f.dir.DefineClass(f.tok, classdir.ClassSpec{Name: name, Methods: methods})
	require.NoError(t, err)
	return id
}

func (f *fixture) method(t *testing.T, fullName string) classdir.MethodID {
	t.Helper()
	id, err := f.dir.LookupMethod(f.tok, fullName)
	require.NoError(t, err)
	return id
}

func TestRegistry_SetBreakpoint(t *testing.T) {
	f := newFixture(t)
	f.defineClass(t, "A", classdir.MethodSpec{Name: "run", CodeUnits: 16})
	mA := f.method(t, "A.run")

	t.Run("success", func(t *testing.T) {
		require.NoError(t, f.reg.SetBreakpoint(f.tok, mA, 3))
		assert.True(t, f.reg.Contains(f.tok, mA, 3))
		assert.Equal(t, 1, f.reg.Len(f.tok))
	})

	t.Run("duplicate leaves size unchanged", func(t *testing.T) {
		err := f.reg.SetBreakpoint(f.tok, mA, 3)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.Equal(t, Duplicate, CodeOf(err))
		assert.Equal(t, 1, f.reg.Len(f.tok))
	})

	t.Run("nil method", func(t *testing.T) {
		err := f.reg.SetBreakpoint(f.tok, classdir.MethodID{}, 0)
		assert.ErrorIs(t, err, ErrInvalidMethod)
		assert.Equal(t, 1, f.reg.Len(f.tok))
	})

	t.Run("unknown method token", func(t *testing.T) {
		err := f.reg.SetBreakpoint(f.tok, methodID(999, 1), 0)
		assert.ErrorIs(t, err, ErrInvalidMethod)
	})
}

func TestRegistry_LocationBounds(t *testing.T) {
	f := newFixture(t)
	const n = 10
	f.defineClass(t, "Bounds", classdir.MethodSpec{Name: "m", CodeUnits: n})
	m := f.method(t, "Bounds.m")

	tests := []struct {
		name string
		loc  Location
		want Code
	}{
		{name: "negative", loc: -1, want: InvalidLocation},
		{name: "length", loc: n, want: InvalidLocation},
		{name: "far past end", loc: 1 << 40, want: InvalidLocation},
		{name: "first", loc: 0, want: Success},
		{name: "last", loc: n - 1, want: Success},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.reg.Len(f.tok)
			err := f.reg.SetBreakpoint(f.tok, m, tt.loc)
			assert.Equal(t, tt.want, CodeOf(err))
			if tt.want != Success {
				assert.Equal(t, before, f.reg.Len(f.tok))
			}
		})
	}

	t.Run("empty method has no valid location", func(t *testing.T) {
		f.defineClass(t, "Native", classdir.MethodSpec{Name: "call", CodeUnits: 0})
		err := f.reg.SetBreakpoint(f.tok, f.method(t, "Native.call"), 0)
		assert.ErrorIs(t, err, ErrInvalidLocation)
	})
}

func TestRegistry_LengthReadFresh(t *testing.T) {
	f := newFixture(t)
	cid := f.defineClass(t, "Grow", classdir.MethodSpec{Name: "m", CodeUnits: 2})

	assert.ErrorIs(t, f.reg.SetBreakpoint(f.tok, f.method(t, "Grow.m"), 5), ErrInvalidLocation)

	require.NoError(t, f.dir.Redefine(f.tok, cid, []classdir.MethodSpec{{Name: "m", CodeUnits: 8}}))
	assert.NoError(t, f.reg.SetBreakpoint(f.tok, f.method(t, "Grow.m"), 5))
}

func TestRegistry_ClearBreakpoint(t *testing.T) {
	f := newFixture(t)
	f.defineClass(t, "C", classdir.MethodSpec{Name: "m", CodeUnits: 4})
	m := f.method(t, "C.m")

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, f.reg.SetBreakpoint(f.tok, m, 2))
		require.NoError(t, f.reg.ClearBreakpoint(f.tok, m, 2))
		assert.False(t, f.reg.Contains(f.tok, m, 2))
		assert.Equal(t, 0, f.reg.Len(f.tok))
	})

	t.Run("not found", func(t *testing.T) {
		err := f.reg.ClearBreakpoint(f.tok, m, 2)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, NotFound, CodeOf(err))
	})

	t.Run("invalid method", func(t *testing.T) {
		err := f.reg.ClearBreakpoint(f.tok, classdir.MethodID{}, 2)
		assert.ErrorIs(t, err, ErrInvalidMethod)
	})
}

func TestRegistry_CanonicalAliasing(t *testing.T) {
	f := newFixture(t)
	f.defineClass(t, "Iface", classdir.MethodSpec{Name: "apply", CodeUnits: 6})
	impl := f.defineClass(t, "Impl")

	concrete := f.method(t, "Iface.apply")
	alias, err := f.dir.AddDefaultAlias(f.tok, impl, "apply", concrete)
	require.NoError(t, err)

	t.Run("set via alias, clear via concrete", func(t *testing.T) {
		require.NoError(t, f.reg.SetBreakpoint(f.tok, alias, 1))
		assert.True(t, f.reg.Contains(f.tok, concrete, 1))
		assert.ErrorIs(t, f.reg.SetBreakpoint(f.tok, concrete, 1), ErrDuplicate)
		require.NoError(t, f.reg.ClearBreakpoint(f.tok, concrete, 1))
		assert.Equal(t, 0, f.reg.Len(f.tok))
	})

	t.Run("set via concrete, clear via alias", func(t *testing.T) {
		require.NoError(t, f.reg.SetBreakpoint(f.tok, concrete, 4))
		assert.True(t, f.reg.Contains(f.tok, alias, 4))
		require.NoError(t, f.reg.ClearBreakpoint(f.tok, alias, 4))
		assert.Equal(t, 0, f.reg.Len(f.tok))
	})

	t.Run("owner is the canonical method's class", func(t *testing.T) {
		require.NoError(t, f.reg.SetBreakpoint(f.tok, alias, 0))
		assert.Equal(t, 0, f.reg.RemoveBreakpointsInClass(f.tok, impl))
		assert.Equal(t, 1, f.reg.Len(f.tok))
	})
}

func TestRegistry_RemoveBreakpointsInClass(t *testing.T) {
	f := newFixture(t)
	c := f.defineClass(t, "C", classdir.MethodSpec{Name: "m1", CodeUnits: 10})
	f.defineClass(t, "D", classdir.MethodSpec{Name: "m2", CodeUnits: 10})
	m1 := f.method(t, "C.m1")
	m2 := f.method(t, "D.m2")

	require.NoError(t, f.reg.SetBreakpoint(f.tok, m1, 5))
	require.NoError(t, f.reg.SetBreakpoint(f.tok, m1, 6))
	require.NoError(t, f.reg.SetBreakpoint(f.tok, m2, 3))

	removed := f.reg.RemoveBreakpointsInClass(f.tok, c)
	assert.Equal(t, 2, removed)
	assert.False(t, f.reg.Contains(f.tok, m1, 5))
	assert.True(t, f.reg.Contains(f.tok, m2, 3))
	assert.Equal(t, 1, f.reg.Len(f.tok))

	t.Run("empty match is a no-op", func(t *testing.T) {
		assert.Equal(t, 0, f.reg.RemoveBreakpointsInClass(f.tok, c))
		assert.Equal(t, 1, f.reg.Len(f.tok))
	})
}

func TestRegistry_ConcreteScenario(t *testing.T) {
	f := newFixture(t)
	owner := f.defineClass(t, "Owner", classdir.MethodSpec{Name: "mA", CodeUnits: 32})
	mA := f.method(t, "Owner.mA")

	assert.Equal(t, Success, CodeOf(f.reg.SetBreakpoint(f.tok, mA, 0)))
	assert.Equal(t, Duplicate, CodeOf(f.reg.SetBreakpoint(f.tok, mA, 0)))
	assert.Equal(t, Success, CodeOf(f.reg.SetBreakpoint(f.tok, mA, 10)))
	assert.Equal(t, 2, f.reg.Len(f.tok))
	assert.Equal(t, Success, CodeOf(f.reg.ClearBreakpoint(f.tok, mA, 0)))
	assert.Equal(t, 1, f.reg.Len(f.tok))
	assert.Equal(t, NotFound, CodeOf(f.reg.ClearBreakpoint(f.tok, mA, 0)))

	f.reg.RemoveBreakpointsInClass(f.tok, owner)
	assert.Equal(t, 0, f.reg.Len(f.tok))
}

func TestRegistry_StaleTokenAfterRedefine(t *testing.T) {
	f := newFixture(t)
	cid := f.defineClass(t, "Hot", classdir.MethodSpec{Name: "loop", CodeUnits: 20})
	old := f.method(t, "Hot.loop")

	f.dir.Subscribe(f.tok, classdir.ListenerFunc(func(tok *mutator.Token, class classdir.ClassID, _ classdir.Reason) {
		f.reg.RemoveBreakpointsInClass(tok, class)
	}))

	require.NoError(t, f.reg.SetBreakpoint(f.tok, old, 7))
	require.NoError(t, f.dir.Redefine(f.tok, cid, []classdir.MethodSpec{{Name: "loop", CodeUnits: 20}}))

	assert.Equal(t, 0, f.reg.Len(f.tok))
	assert.False(t, f.reg.Contains(f.tok, old, 7))
	assert.ErrorIs(t, f.reg.SetBreakpoint(f.tok, old, 7), ErrInvalidMethod)
	assert.ErrorIs(t, f.reg.ClearBreakpoint(f.tok, old, 7), ErrInvalidMethod)

	fresh := f.method(t, "Hot.loop")
	assert.False(t, f.reg.Contains(f.tok, fresh, 7))
	assert.NoError(t, f.reg.SetBreakpoint(f.tok, fresh, 7))
}

func TestRegistry_ListAndReset(t *testing.T) {
	f := newFixture(t)
	cid := f.defineClass(t, "L",
		classdir.MethodSpec{Name: "a", CodeUnits: 10},
		classdir.MethodSpec{Name: "b", CodeUnits: 10},
	)
	a := f.method(t, "L.a")
	b := f.method(t, "L.b")

	require.NoError(t, f.reg.SetBreakpoint(f.tok, b, 1))
	require.NoError(t, f.reg.SetBreakpoint(f.tok, a, 9))
	require.NoError(t, f.reg.SetBreakpoint(f.tok, a, 2))

	entries := f.reg.List(f.tok)
	require.Len(t, entries, 3)
	assert.Equal(t, New(a, 2), entries[0].Breakpoint)
	assert.Equal(t, New(a, 9), entries[1].Breakpoint)
	assert.Equal(t, New(b, 1), entries[2].Breakpoint)
	for _, e := range entries {
		assert.Equal(t, cid, e.Class)
	}

	f.reg.Reset(f.tok)
	assert.Equal(t, 0, f.reg.Len(f.tok))
	assert.Empty(t, f.reg.List(f.tok))
}

func TestRegistry_RequiresLock(t *testing.T) {
	lock := mutator.New()
	dir := classdir.New(lock, zerolog.Nop())
	reg := NewRegistry(lock, dir)

	tok := lock.Acquire()
	lock.Release(tok)

	assert.Panics(t, func() { _ = reg.SetBreakpoint(tok, methodID(1, 1), 0) })
	assert.Panics(t, func() { _ = reg.Contains(nil, methodID(1, 1), 0) })
	assert.Panics(t, func() { reg.RemoveBreakpointsInClass(tok, classdir.ClassID{}) })
}

func TestRegistry_RejectsTokenOfAnotherLock(t *testing.T) {
	f := newFixture(t)
	f.defineClass(t, "app.Orders", classdir.MethodSpec{Name: "place", CodeUnits: 4})
	m := f.method(t, "app.Orders.place")

	other := mutator.New(mutator.WithAssertions(true))
	foreign := other.Acquire()
	defer other.Release(foreign)

	assert.Panics(t, func() { _ = f.reg.SetBreakpoint(foreign, m, 1) })
	assert.Panics(t, func() { _ = f.reg.Contains(foreign, m, 1) })
	assert.Panics(t, func() { _ = f.reg.ClearBreakpoint(foreign, m, 1) })
	assert.Panics(t, func() { f.reg.Reset(foreign) })
	assert.Equal(t, 0, f.reg.Len(f.tok))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, Internal, CodeOf(errors.New("other")))

	wrapped := errors.Join(errors.New("context"), &Error{Code: NotFound})
	assert.Equal(t, NotFound, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrDuplicate)
}

func TestCode_StringRoundTrip(t *testing.T) {
	for c := Success; c <= Internal; c++ {
		parsed, err := ParseCode(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCode("BOGUS")
	assert.Error(t, err)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "duplicate breakpoint", ErrDuplicate.Error())
	err := &Error{Code: InvalidLocation, Method: methodID(2, 1), Location: 40}
	assert.Equal(t, "invalid location: method#2.1@40", err.Error())
}
