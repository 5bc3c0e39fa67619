// Package service is the runtime access layer over a migrated database.
//
// A Service wraps one *sqlx.DB and a synth.Plan and hands out a Table per
// entity. Tables read with the planned queries (Get, GetAll, Filter*,
// Between*, Sum, Find and their enriched W variants) and write with Create,
// Update, Delete, Realize and Unrealize.
//
// Every write takes an optional *sqlx.Tx. With a nil tx the write opens and
// commits its own transaction; otherwise it joins the caller's and leaves the
// commit to them. Register adjustments, complex handlers, hooks and related
// cascades all run inside that one transaction, so a failure anywhere leaves
// the database unchanged.
//
// Document lifecycle:
//
//	draft --Realize--> realized --Unrealize--> draft
//	  |                   |
//	Delete              Delete
//	  v                   v
//	inactive          inactive
//
// Line items follow their document: a line item of a draft is removed, one
// of a realized document is soft deleted and gives back its rz registers.
package service
