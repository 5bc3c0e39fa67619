package service

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/erpgen/internal/synth"
)

// Authorizer decides whether the caller may use a right such as DOCS_READ.
type Authorizer interface {
	Authorize(ctx context.Context, right string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, right string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, right string) error { return f(ctx, right) }

type allowAll struct{}

func (allowAll) Authorize(context.Context, string) error { return nil }

// Service interprets a synthesized plan against a live database. It behaves
// as the emitted code does for the same plan.
type Service struct {
	db       *sqlx.DB
	plan     *synth.Plan
	logger   *slog.Logger
	stamps   *stamper
	auth     Authorizer
	registry *Registry
	tables   map[string]*Table
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock behind created_at and updated_at.
func WithClock(c Clock) Option {
	return func(s *Service) { s.stamps = newStamper(c) }
}

// WithAuthorizer sets the rights check. The default allows everything.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.auth = a }
}

// WithHandlers sets the registry of complex registers and hooks.
func WithHandlers(r *Registry) Option {
	return func(s *Service) { s.registry = r }
}

// New returns a Service for plan over db.
func New(db *sqlx.DB, plan *synth.Plan, opts ...Option) *Service {
	s := &Service{
		db:       db,
		plan:     plan,
		logger:   slog.New(slog.DiscardHandler),
		stamps:   newStamper(nil),
		auth:     allowAll{},
		registry: NewRegistry(),
		tables:   make(map[string]*Table, len(plan.Entities)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, ep := range plan.Entities {
		s.tables[ep.Name] = &Table{svc: s, plan: ep, log: s.logger.With("entity", ep.Name)}
	}
	return s
}

// Check reports every complex register and hook the schema names that the
// registry does not provide.
func (s *Service) Check() error {
	missing := &MissingHandlerError{}
	for _, name := range s.plan.ComplexHandlers() {
		if _, ok := s.registry.complex[name]; !ok {
			missing.Complex = append(missing.Complex, name)
		}
	}
	for _, name := range s.plan.HookFuncs() {
		if _, ok := s.registry.hooks[name]; !ok {
			missing.Hooks = append(missing.Hooks, name)
		}
	}
	if len(missing.Complex) > 0 || len(missing.Hooks) > 0 {
		return missing
	}
	return nil
}

// DB returns the database handle.
func (s *Service) DB() *sqlx.DB { return s.db }

// Plan returns the plan being interpreted.
func (s *Service) Plan() *synth.Plan { return s.plan }

// Entity returns the handle of one entity.
func (s *Service) Entity(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, &UnknownEntityError{Entity: name}
	}
	return t, nil
}

func (s *Service) authorize(ctx context.Context, right string) error {
	if err := s.auth.Authorize(ctx, right); err != nil {
		return &PermissionError{Right: right, Err: err}
	}
	return nil
}
