package synth

import (
	"fmt"

	"github.com/roach88/erpgen/internal/schema"
)

// LedgerStep adjusts Target.Field on the row the owner references through
// Via by the sum of the owner's Sources, or assigns Sources[0] for a
// snapshot register.
type LedgerStep struct {
	Target     string          `json:"target"`
	Field      string          `json:"field"`
	Via        string          `json:"via"`
	Op         schema.Operator `json:"op"`
	Sources    []string        `json:"sources"`
	Realized   bool            `json:"realized,omitempty"`
	TargetType schema.Type     `json:"target_type"`

	Load  string `json:"load"`
	Store string `json:"store"`
}

// Snapshot reports whether the step assigns instead of accumulating.
func (s LedgerStep) Snapshot() bool { return !s.Op.Accumulates() }

// Inverse returns the step that cancels s.
func (s LedgerStep) Inverse() LedgerStep {
	s.Op = s.Op.Invert()
	return s
}

// Ledger is the register protocol of one owning entity.
type Ledger struct {
	Steps []LedgerStep `json:"steps,omitempty"`
}

// Empty reports whether the entity keeps no registers.
func (l Ledger) Empty() bool { return len(l.Steps) == 0 }

// Create returns the plain register steps applied when a row is inserted.
func (l Ledger) Create() []LedgerStep {
	return l.filter(func(s LedgerStep) bool { return !s.Realized })
}

// Realize returns the rz register steps applied on the transition to
// realized.
func (l Ledger) Realize() []LedgerStep {
	return l.filter(func(s LedgerStep) bool { return s.Realized })
}

// Update returns the inverted steps undone on the previous row and the
// steps re-applied on the new one. rz registers are undone only when the
// previous version was realized and re-applied only when the new one is, so
// a line item moved between documents carries exactly the contributions in
// effect. Snapshot registers are never undone.
func (l Ledger) Update(wasRealized, isRealized bool) (undo, redo []LedgerStep) {
	for _, s := range l.Steps {
		if !s.Snapshot() && (!s.Realized || wasRealized) {
			undo = append(undo, s.Inverse())
		}
		if !s.Realized || isRealized {
			redo = append(redo, s)
		}
	}
	return undo, redo
}

// Delete returns the inverted steps run on delete: plain registers unless
// the delete is an unrealize, rz registers when realized. Snapshot
// registers have no inverse and are skipped.
func (l Ledger) Delete(realized, unrealize bool) []LedgerStep {
	var out []LedgerStep
	for _, s := range l.Steps {
		if s.Snapshot() {
			continue
		}
		if s.Realized && !realized {
			continue
		}
		if !s.Realized && unrealize {
			continue
		}
		out = append(out, s.Inverse())
	}
	return out
}

func (l Ledger) filter(keep func(LedgerStep) bool) []LedgerStep {
	var out []LedgerStep
	for _, s := range l.Steps {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func buildLedger(m *schema.Model, e *schema.Entity) (Ledger, error) {
	var l Ledger
	add := func(regs []schema.Register, realized bool) error {
		for _, r := range regs {
			target, ok := m.Entity(r.Target)
			if !ok {
				return fmt.Errorf("register %s: unknown target", r.RegField())
			}
			tc, ok := target.Column(r.Field)
			if !ok {
				return fmt.Errorf("register %s: unknown target column", r.RegField())
			}
			l.Steps = append(l.Steps, LedgerStep{
				Target:     r.Target,
				Field:      r.Field,
				Via:        r.Via,
				Op:         r.Op,
				Sources:    r.Sources,
				Realized:   realized,
				TargetType: tc.Type,
				Load:       fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", r.Field, r.Target),
				Store:      fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", r.Target, r.Field),
			})
		}
		return nil
	}
	if err := add(e.Registers, false); err != nil {
		return Ledger{}, err
	}
	if err := add(e.RzRegisters, true); err != nil {
		return Ledger{}, err
	}
	return l, nil
}
