// Package codegen emits a standalone Go access layer for a synthesized plan.
//
// The emitted package depends on database/sql only. It declares typed row
// structs, one method family per entity and the same transaction protocol
// as the runtime: every write takes an optional *sql.Tx and joins it when
// given.
//
// Complex registers and hooks are hand-written. The emitted code declares
// the ComplexHandler and Hooks interfaces for them, and New refuses to build
// a DB while a declared complex register has no handler.
package codegen
