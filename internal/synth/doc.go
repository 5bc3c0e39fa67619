// Package synth turns a Schema Model into the typed plan of the generated
// access layer.
//
// For every entity Build produces the SQL of each operation family (get,
// get-all, insert, update, delete, filter, between, between_up, sum, find
// and their enriched variants), the ledger steps of its registers and its
// realization lifecycle. The plan is consumed twice: by the runtime
// interpreter in package service, and by the Go emitter in package codegen.
// Both must behave the same for the same plan.
//
// The synthesizers read only the model. They never touch a database.
//
// SQL conventions:
//   - every value is a ? parameter;
//   - field names validated at call time are substituted through a %s
//     placeholder;
//   - every list query ends in ORDER BY id.
package synth
