// Package journal persists run and task history in SQLite.
//
// The queue core never reads the journal; it exists so the run initiator can
// record what was dispatched and what each worker's exit status reported,
// and so `cryptq history` can replay it later. Schema changes bump the
// version in store.go; users clear the journal to adopt the new schema.
package journal
