// Package jvmti hosts debugging environments on top of the runtime.
//
// A Runtime owns the exclusivity lock, the method directory and every live
// debugging environment. Each Env owns one breakpoint registry. When the
// directory retires a class (unload or redefinition) the Runtime cascades the
// removal into every environment so no breakpoint outlives its class.
package jvmti

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-bp/internal/config"
	"github.com/coral-mesh/coral-bp/internal/jvmti/breakpoint"
	"github.com/coral-mesh/coral-bp/internal/metrics"
	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

// Runtime is the host of all debugging environments.
type Runtime struct {
	cfg     config.RuntimeConfig
	logger  zerolog.Logger
	lock    *mutator.Lock
	dir     *classdir.Directory
	metrics *metrics.Collector

	// Guarded by lock. order holds the live envs in creation order.
	envs  map[uuid.UUID]*Env
	order []*Env
}

// NewRuntime creates a runtime with an empty directory and no environments.
// A nil collector gets a fresh private one.
func NewRuntime(cfg config.RuntimeConfig, logger zerolog.Logger, collector *metrics.Collector) *Runtime {
	if collector == nil {
		collector = metrics.New()
	}

	rt := &Runtime{
		cfg:     cfg,
		logger:  logger.With().Str("component", "jvmti").Logger(),
		lock:    mutator.New(mutator.WithAssertions(cfg.AssertExclusive)),
		metrics: collector,
		envs:    make(map[uuid.UUID]*Env),
	}

	rt.dir = classdir.New(rt.lock, logger)

	tok := rt.lock.Acquire()
	rt.dir.Subscribe(tok, rt)
	rt.lock.Release(tok)

	return rt
}

// Lock returns the runtime exclusivity lock.
func (rt *Runtime) Lock() *mutator.Lock { return rt.lock }

// Directory returns the method directory.
func (rt *Runtime) Directory() *classdir.Directory { return rt.dir }

// Metrics returns the metrics collector.
func (rt *Runtime) Metrics() *metrics.Collector { return rt.metrics }

// Exclusive runs fn while holding the exclusivity lock.
func (rt *Runtime) Exclusive(fn func(tok *mutator.Token) error) error {
	return rt.lock.Do(fn)
}

// NewEnv creates a debugging environment with an empty breakpoint registry.
func (rt *Runtime) NewEnv(tok *mutator.Token) (*Env, error) {
	tok.AssertHolds(rt.lock)

	if limit := rt.cfg.MaxEnvironments; limit > 0 && len(rt.envs) >= limit {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyEnvs, limit)
	}

	env := &Env{
		id:       uuid.New(),
		rt:       rt,
		registry: breakpoint.NewRegistry(rt.lock, rt.dir),
	}
	rt.envs[env.id] = env
	rt.order = append(rt.order, env)
	rt.metrics.SetEnvironments(len(rt.envs))

	rt.logger.Debug().Str("env_id", env.id.String()).Msg("Environment created")
	return env, nil
}

// Env returns the live environment with the given id.
func (rt *Runtime) Env(tok *mutator.Token, id uuid.UUID) (*Env, bool) {
	tok.AssertHolds(rt.lock)
	env, ok := rt.envs[id]
	return env, ok
}

// Envs returns all live environments in creation order.
func (rt *Runtime) Envs(tok *mutator.Token) []*Env {
	tok.AssertHolds(rt.lock)

	return slices.Clone(rt.order)
}

// EnvsWithBreakpoint returns the environments that have a breakpoint at loc
// in method, in creation order. An execution dispatcher uses it to decide
// which environments receive a breakpoint event.
func (rt *Runtime) EnvsWithBreakpoint(tok *mutator.Token, method classdir.MethodID, loc breakpoint.Location) []*Env {
	tok.AssertHolds(rt.lock)

	var hits []*Env
	for _, env := range rt.order {
		if env.registry.Contains(tok, method, loc) {
			hits = append(hits, env)
		}
	}
	return hits
}

// ClassRetiring cascades class removal into every environment.
func (rt *Runtime) ClassRetiring(tok *mutator.Token, class classdir.ClassID, reason classdir.Reason) {
	tok.AssertHolds(rt.lock)

	total := 0
	for _, env := range rt.order {
		removed := env.registry.RemoveBreakpointsInClass(tok, class)
		if removed == 0 {
			continue
		}
		total += removed
		rt.logger.Debug().
			Str("env_id", env.id.String()).
			Str("class", class.String()).
			Str("reason", string(reason)).
			Int("removed", removed).
			Msg("Breakpoints removed with class")
	}
	rt.metrics.ObserveCascade(string(reason), total)
}

func (rt *Runtime) dispose(tok *mutator.Token, env *Env) {
	tok.AssertHolds(rt.lock)

	delete(rt.envs, env.id)
	rt.order = slices.DeleteFunc(rt.order, func(e *Env) bool { return e == env })
	rt.metrics.SetEnvironments(len(rt.envs))
}
