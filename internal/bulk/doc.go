// Package bulk applies one operation to many contacts.
//
// Adds to a list run sequentially: each call is awaited before the next and
// the first failure stops the run. Calls already applied stay applied; there
// is no rollback. Deletes run in parallel and the first error wins.
//
// A run holds a lock on its list for its whole duration, and every run is
// written to a Journal so partially applied runs can be inspected later.
package bulk
