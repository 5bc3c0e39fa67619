package synth

import (
	"fmt"

	"github.com/roach88/erpgen/internal/schema"
)

// DeleteAction is the final row write of a delete.
type DeleteAction int

const (
	// DeleteSoft clears is_active.
	DeleteSoft DeleteAction = iota
	// DeleteHard removes the row. Only a line item of a draft document is
	// hard-deleted.
	DeleteHard
	// DeleteKeep leaves the row as is.
	DeleteKeep
	// DeleteClearRealized clears is_realized and keeps the row active.
	DeleteClearRealized
)

func (a DeleteAction) String() string {
	switch a {
	case DeleteHard:
		return "hard"
	case DeleteKeep:
		return "keep"
	case DeleteClearRealized:
		return "clear-realized"
	default:
		return "soft"
	}
}

// Owner links a line item to its document.
type Owner struct {
	FK     string `json:"fk"`
	Entity string `json:"entity"`
	// RealizedSQL reads the document's is_realized flag.
	RealizedSQL string `json:"realized_sql"`
}

// RelatedStep selects the active rows of a dependent collection, filtered
// by Filter = owner[FilterValue].
type RelatedStep struct {
	Entity      string `json:"entity"`
	Filter      string `json:"filter"`
	FilterValue string `json:"filter_value"`
	SQL         string `json:"sql"`
}

// Lifecycle drives realize, unrealize and delete.
type Lifecycle struct {
	Kind    schema.Kind   `json:"kind"`
	Owner   *Owner        `json:"owner,omitempty"`
	Related []RelatedStep `json:"related,omitempty"`
	// Complex names the hand-written handlers run on realize, on update
	// while realized and on delete while realized.
	Complex []string `json:"complex,omitempty"`
}

// Realizable reports whether realize applies.
func (l Lifecycle) Realizable() bool { return l.Kind != schema.KindPlain }

// DeleteAction decides the final write of a delete. For a document,
// realized is its own flag; for a line item, the owning document's.
func (l Lifecycle) DeleteAction(realized, unrealize bool) DeleteAction {
	switch l.Kind {
	case schema.KindDocument:
		if unrealize {
			return DeleteClearRealized
		}
		return DeleteSoft
	case schema.KindLineItem:
		switch {
		case unrealize:
			return DeleteKeep
		case realized:
			return DeleteSoft
		default:
			return DeleteHard
		}
	default:
		if unrealize {
			return DeleteKeep
		}
		return DeleteSoft
	}
}

func buildLifecycle(m *schema.Model, e *schema.Entity) (Lifecycle, error) {
	lc := Lifecycle{Kind: e.Kind}
	if e.IsLineItem() {
		fk, ok := m.OwningDocument(e)
		if !ok {
			return Lifecycle{}, fmt.Errorf("line item has no owning document")
		}
		lc.Owner = &Owner{
			FK:          fk.Name,
			Entity:      fk.Ref,
			RealizedSQL: fmt.Sprintf("SELECT is_realized FROM %s WHERE id = ?", fk.Ref),
		}
	}
	for _, r := range e.Related {
		lc.Related = append(lc.Related, RelatedStep{
			Entity:      r.Entity,
			Filter:      r.Filter,
			FilterValue: r.FilterValue,
			SQL:         fmt.Sprintf("SELECT id FROM %s WHERE %s = ? AND is_active = 1 ORDER BY id", r.Entity, r.Filter),
		})
	}
	for _, c := range e.ComplexRegisters {
		lc.Complex = append(lc.Complex, c.Name)
	}
	return lc, nil
}
