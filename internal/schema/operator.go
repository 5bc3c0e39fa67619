package schema

import "fmt"

// Operator is the arithmetic a register applies to its target.
type Operator int

const (
	// OpSnapshot marks a register that records the last observed value
	// instead of accumulating. It has no inverse and is skipped on delete.
	OpSnapshot Operator = iota
	OpIncrement
	OpDecrement
)

// ParseOperator maps a register func string ("+", "-", "") to an Operator.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "+":
		return OpIncrement, nil
	case "-":
		return OpDecrement, nil
	case "":
		return OpSnapshot, nil
	default:
		return OpSnapshot, fmt.Errorf("unknown register func %q", s)
	}
}

// Invert returns the operator that cancels o. Snapshot inverts to itself.
func (o Operator) Invert() Operator {
	switch o {
	case OpIncrement:
		return OpDecrement
	case OpDecrement:
		return OpIncrement
	default:
		return OpSnapshot
	}
}

// Accumulates reports whether the register sums contributions.
func (o Operator) Accumulates() bool {
	return o != OpSnapshot
}

// Sign is +1, -1, or 0 for a snapshot.
func (o Operator) Sign() int {
	switch o {
	case OpIncrement:
		return 1
	case OpDecrement:
		return -1
	default:
		return 0
	}
}

// Symbol returns the schema spelling of the operator.
func (o Operator) Symbol() string {
	switch o {
	case OpIncrement:
		return "+"
	case OpDecrement:
		return "-"
	default:
		return ""
	}
}

func (o Operator) String() string {
	switch o {
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	default:
		return "snapshot"
	}
}
