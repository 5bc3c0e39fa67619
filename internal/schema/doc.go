// Package schema parses entity schema files into the typed Schema Model.
//
// A schema file (JSON, YAML or CUE) is unified with the #File definition in
// file.cue, walked into Entities and Columns, and validated as a whole.
// Validation does not stop at the first problem: every SchemaError found is
// returned, each with a code (E2xx) and the source position of its entity.
//
// The model is immutable once Parse returns. Load combines the current
// schema, the previous schema and the change directive into the Input of
// one generator run.
//
// Naming helpers (GoName, LowerGoName, FindName) are pure functions of
// schema names; the synthesizers and the code emitter derive every
// identifier through them.
package schema
