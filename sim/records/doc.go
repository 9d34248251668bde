// Package records stores finished simulations per user.
//
// A Record keeps the inputs of a run (commands and obstacle layout) and its
// summary (final state and counters). Because the interpreter is
// deterministic, Record.Result rebuilds the full step trace on demand and
// reports ErrCorruptRecord if the stored summary no longer matches.
//
// Saving requires a user ID; callers without one get ErrUnauthenticated.
// Recent lists a user's records newest first, ten by default.
package records
