package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
)

// adjust applies one ledger step for row to the related row it references.
// A related row that cannot be read is a RelatedLoadMiss: logged and
// skipped.
func (t *Table) adjust(ctx context.Context, q store.Querier, s synth.LedgerStep, row Row) error {
	targetID := row.Int(s.Via)

	var current any
	if err := q.QueryRowxContext(ctx, s.Load, targetID).Scan(&current); err != nil {
		miss := &RelatedLoadMiss{Entity: s.Target, ID: targetID, Err: err}
		t.log.DebugContext(ctx, "register skipped", "register", s.Target+"."+s.Field, "error", miss)
		return nil
	}

	next, err := ledgerValue(s, current, row)
	if err != nil {
		return fmt.Errorf("register %s.%s: %w", s.Target, s.Field, err)
	}
	if _, err := q.ExecContext(ctx, s.Store, next, targetID); err != nil {
		return fmt.Errorf("register %s.%s: %w", s.Target, s.Field, err)
	}
	t.log.DebugContext(ctx, "register applied", "register", s.Target+"."+s.Field, "op", s.Op, "id", targetID)
	return nil
}

// ledgerValue computes the new target value. Accumulating steps add or
// subtract the sum of the sources in decimal arithmetic so that a step and
// its inverse cancel exactly; int targets are rounded back to integers.
func ledgerValue(s synth.LedgerStep, current any, row Row) (any, error) {
	if s.Snapshot() {
		return schema.Coerce(s.TargetType, row[s.Sources[0]])
	}

	cur, err := toDecimal(current)
	if err != nil {
		return nil, err
	}
	var contribution decimal.Decimal
	for _, src := range s.Sources {
		d, err := toDecimal(row[src])
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
		contribution = contribution.Add(d)
	}

	switch s.Op {
	case schema.OpIncrement:
		cur = cur.Add(contribution)
	case schema.OpDecrement:
		cur = cur.Sub(contribution)
	}
	if s.TargetType == schema.TypeInt {
		return cur.Round(0).IntPart(), nil
	}
	f, _ := cur.Float64()
	return f, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case bool:
		if x {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case []byte:
		return decimal.NewFromString(string(x))
	case string:
		if x == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(x)
	default:
		return decimal.Zero, fmt.Errorf("cannot use %T in a register", v)
	}
}
