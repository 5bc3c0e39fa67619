package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/erpgen/internal/migrate"
	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/service"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
	"github.com/roach88/erpgen/internal/testutil"
)

// Error kinds a flow step can expect.
const (
	KindUnknownEntity = "unknown_entity"
	KindUnknownField  = "unknown_field"
	KindTransition    = "transition"
	KindPermission    = "permission"
	KindNotFound      = "not_found"
	KindError         = "error"
)

func knownKind(k string) bool {
	switch k {
	case KindUnknownEntity, KindUnknownField, KindTransition, KindPermission, KindNotFound, KindError:
		return true
	}
	return false
}

// errorKind classifies an error returned by the runtime.
func errorKind(err error) string {
	var ue *service.UnknownEntityError
	switch {
	case errors.As(err, &ue):
		return KindUnknownEntity
	case service.IsUnknownField(err):
		return KindUnknownField
	case service.IsTransition(err):
		return KindTransition
	case service.IsPermission(err):
		return KindPermission
	case errors.Is(err, service.ErrNotFound):
		return KindNotFound
	default:
		return KindError
	}
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes runtime and migrator logs to l. Runs are silent by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Harness executes one scenario against a fresh database.
type Harness struct {
	db     *sqlx.DB
	svc    *service.Service
	logger *slog.Logger
	seq    int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Parse the schema and synthesize its plan
// 2. Create the tables of a first-run migration plan
// 3. Execute setup steps
// 4. Execute flow steps and check their expected outcome
// 5. Evaluate assertions and return the result
//
// An error is returned when the scenario cannot be executed at all: the
// schema does not load, a setup step fails or a "$n" reference is invalid.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}
	ctx := context.Background()

	m, err := schema.ParseFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	plan, err := synth.Build(m)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.db = st.DB()

	migrator := migrate.Migrator{Logger: h.logger}
	if _, err := migrator.Apply(ctx, h.db, migrate.Plan(nil, m, schema.ChangeDirective{}), nil, nil); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	h.svc = service.New(h.db, plan,
		service.WithLogger(h.logger),
		service.WithClock(testutil.NewDeterministicClock()),
		service.WithHandlers(noopRegistry(plan)),
		service.WithAuthorizer(denyRights(scenario.Deny)),
	)

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{DB: h.db, Ctx: ctx, IDs: result.IDs}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	for _, ep := range plan.Entities {
		var n int64
		if err := h.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+ep.Name); err != nil {
			return nil, fmt.Errorf("count %s: %w", ep.Name, err)
		}
		result.State[ep.Name] = n
	}
	return result, nil
}

// noopRegistry provides a handler for every complex register and hook the
// plan names. Scenarios observe register tables, not handler side effects.
func noopRegistry(plan *synth.Plan) *service.Registry {
	reg := service.NewRegistry()
	for _, name := range plan.ComplexHandlers() {
		reg.Complex(name, service.ComplexFuncs{})
	}
	for _, name := range plan.HookFuncs() {
		reg.Hook(name, func(context.Context, store.Querier, string, service.Row) error { return nil })
	}
	return reg
}

func denyRights(rights []string) service.Authorizer {
	denied := make(map[string]bool, len(rights))
	for _, r := range rights {
		denied[r] = true
	}
	return service.AuthorizerFunc(func(_ context.Context, right string) error {
		if denied[right] {
			return errors.New("denied by scenario")
		}
		return nil
	})
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// executeSetup runs all setup steps. Setup steps are assumed to succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []SetupStep, result *Result) error {
	for i, step := range setup {
		args, err := resolveArgs(step.Args, result.IDs)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		action := step.Entity + "." + OpCreate
		result.AddInvocationTrace(action, args, h.next())

		id, err := h.execute(ctx, OpCreate, step.Entity, args)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, action, err)
		}
		result.IDs = append(result.IDs, id)
		result.AddCompletionTrace(OutcomeOK, map[string]any{"id": id}, h.next())
		h.logger.Debug("setup step completed", "step", i, "action", action, "id", id)
	}
	return nil
}

// executeFlow runs all flow steps and checks each outcome against its
// expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		args, err := resolveArgs(step.Args, result.IDs)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.ID != nil {
			id, err := resolveValue(step.ID, result.IDs)
			if err != nil {
				return fmt.Errorf("flow step %d: id: %w", i, err)
			}
			args["id"] = id
		}
		action := step.Entity + "." + step.Op
		result.AddInvocationTrace(action, args, h.next())

		id, err := h.execute(ctx, step.Op, step.Entity, args)
		if id == 0 && step.Op != OpCreate {
			id = asInt64(args["id"])
		}
		result.IDs = append(result.IDs, id)

		outcome := OutcomeOK
		var completion any
		if err != nil {
			outcome = errorKind(err)
		} else if step.Op == OpCreate || step.Op == OpUpdate {
			completion = map[string]any{"id": id}
		}
		result.AddCompletionTrace(outcome, completion, h.next())

		switch {
		case step.Expect == nil && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, action, err))
		case step.Expect != nil && err == nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s error, got success", i, action, step.Expect.Error))
		case step.Expect != nil && outcome != step.Expect.Error:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s error, got %s: %v", i, action, step.Expect.Error, outcome, err))
		}

		h.logger.Debug("flow step completed", "step", i, "action", action, "id", id, "outcome", outcome)
	}
	return nil
}

// execute runs one operation and returns the id of the row it wrote.
func (h *Harness) execute(ctx context.Context, op, entity string, args map[string]any) (int64, error) {
	tbl, err := h.svc.Entity(entity)
	if err != nil {
		return 0, err
	}
	id := asInt64(args["id"])
	switch op {
	case OpCreate:
		row, err := tbl.Create(ctx, service.Row(args), nil)
		if err != nil {
			return 0, err
		}
		return row.ID(), nil
	case OpUpdate:
		row, err := tbl.Update(ctx, service.Row(args), nil)
		if err != nil {
			return 0, err
		}
		return row.ID(), nil
	case OpDelete:
		return id, tbl.Delete(ctx, id, nil, false)
	case OpRealize:
		return id, tbl.Realize(ctx, id, nil)
	case OpUnrealize:
		return id, tbl.Unrealize(ctx, id, nil)
	}
	return 0, fmt.Errorf("unknown op %q", op)
}

// resolveArgs copies args with every "$n" reference replaced.
func resolveArgs(args map[string]any, ids []int64) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for key, val := range args {
		v, err := resolveValue(val, ids)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// resolveValue replaces a "$n" string with the id touched by step n. "$$"
// escapes a literal dollar sign.
func resolveValue(val any, ids []int64) (any, error) {
	s, ok := val.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return val, nil
	}
	if strings.HasPrefix(s, "$$") {
		return s[1:], nil
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q", s)
	}
	if n < 1 || n > len(ids) {
		return nil, fmt.Errorf("reference %s: only %d steps ran before", s, len(ids))
	}
	if ids[n-1] == 0 {
		return nil, fmt.Errorf("reference %s: step %d touched no row", s, n)
	}
	return ids[n-1], nil
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}
