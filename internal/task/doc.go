// Package task defines the on-disk task and dependency schema and the file
// I/O that reads and writes it.
//
// Tasks are stored one JSON file per task at tasks/{id}.json; dependencies
// one JSON file per edge at deps/{from}--{type}--{to}.json. Both are flat,
// CRDT-friendly structures so independent agents editing different tasks
// never conflict at the DVCS layer, and last-write-wins merge at the field
// level is well-defined (see internal/reconcile).
package task
