package service

import (
	"context"
	"fmt"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
)

// ComplexHandler is a hand-written register named by complex_register. It
// runs inside the writer's transaction: Create on realize, Update on update
// while realized, Delete on delete or unrealize while realized.
type ComplexHandler interface {
	Create(ctx context.Context, q store.Querier, entity string, row Row) error
	Update(ctx context.Context, q store.Querier, entity string, prev, next Row) error
	Delete(ctx context.Context, q store.Querier, entity string, row Row) error
}

// ComplexFuncs adapts plain functions to ComplexHandler. Nil phases do
// nothing.
type ComplexFuncs struct {
	OnCreate func(ctx context.Context, q store.Querier, entity string, row Row) error
	OnUpdate func(ctx context.Context, q store.Querier, entity string, prev, next Row) error
	OnDelete func(ctx context.Context, q store.Querier, entity string, row Row) error
}

func (f ComplexFuncs) Create(ctx context.Context, q store.Querier, entity string, row Row) error {
	if f.OnCreate == nil {
		return nil
	}
	return f.OnCreate(ctx, q, entity, row)
}

func (f ComplexFuncs) Update(ctx context.Context, q store.Querier, entity string, prev, next Row) error {
	if f.OnUpdate == nil {
		return nil
	}
	return f.OnUpdate(ctx, q, entity, prev, next)
}

func (f ComplexFuncs) Delete(ctx context.Context, q store.Querier, entity string, row Row) error {
	if f.OnDelete == nil {
		return nil
	}
	return f.OnDelete(ctx, q, entity, row)
}

// HookFunc is a named side effect around a write. Before hooks may modify
// row; the modified row is written.
type HookFunc func(ctx context.Context, q store.Querier, entity string, row Row) error

// Registry resolves complex register and hook names to code.
type Registry struct {
	complex map[string]ComplexHandler
	hooks   map[string]HookFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{complex: map[string]ComplexHandler{}, hooks: map[string]HookFunc{}}
}

// Complex registers h under name and returns r for chaining.
func (r *Registry) Complex(name string, h ComplexHandler) *Registry {
	r.complex[name] = h
	return r
}

// Hook registers fn under name and returns r for chaining.
func (r *Registry) Hook(name string, fn HookFunc) *Registry {
	r.hooks[name] = fn
	return r
}

func (r *Registry) handler(name string) (ComplexHandler, error) {
	h, ok := r.complex[name]
	if !ok {
		return nil, &MissingHandlerError{Complex: []string{name}}
	}
	return h, nil
}

// runHooks calls the hooks of e attached to act at when, in declaration
// order.
func (r *Registry) runHooks(ctx context.Context, q store.Querier, e *schema.Entity, act schema.HookAct, when schema.HookWhen, row Row) error {
	for _, h := range e.HooksFor(act, when) {
		fn, ok := r.hooks[h.Func]
		if !ok {
			return &MissingHandlerError{Hooks: []string{h.Func}}
		}
		if err := fn(ctx, q, e.Name, row); err != nil {
			return fmt.Errorf("hook %s %s %s: %w", h.When, h.Act, h.Func, err)
		}
	}
	return nil
}
