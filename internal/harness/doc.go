// Package harness runs conformance scenarios against the runtime
// interpreter.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: invoice_realize
//	description: "Realizing an invoice ships its items"
//	schema: shop.json
//	setup:
//	  - entity: product
//	    args: { name: bolt, stock: 100 }
//	  - entity: invoice
//	    args: { name: INV-1 }
//	flow:
//	  - op: create
//	    entity: item_to_invoice
//	    args: { invoice_id: $2, product_id: $1, qty: 2 }
//	  - op: realize
//	    entity: invoice
//	    id: $2
//	  - op: realize
//	    entity: invoice
//	    id: $2
//	    expect: { error: transition }
//	assertions:
//	  - type: final_state
//	    table: product
//	    where: { id: $1 }
//	    expect: { stock: 98 }
//	  - type: row_count
//	    table: item_to_invoice
//	    count: 1
//
// "$n" is the id of the row touched by step n, numbering setup steps first
// and starting at 1. The schema path is relative to the scenario file.
//
// # Outcomes
//
// A flow step without expect must succeed. With expect it must fail with
// the named kind: unknown_entity, unknown_field, transition, permission,
// not_found or error. Rights listed under deny are refused by the
// authorizer.
//
// # Assertion Types
//
//   - final_state: exactly one row of table matches where and holds expect
//   - row_count: the number of rows of table matching where
//   - trace_contains: an action such as invoice.realize appears with args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly count times
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite database, a first-run migration
// plan and testutil.DeterministicClock, so created_at and updated_at stamps
// and row ids repeat across runs. Complex registers and hooks are no-ops.
// The trace is compared against golden files in canonical JSON.
package harness
