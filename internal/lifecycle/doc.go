// Package lifecycle implements the Service Lifecycle Supervisor (spec
// §4.6): the nine-step ordered start sequence a node process composes
// its core components under, and its reverse stop sequence, with the
// monitoring sink started first and stopped last so shutdown itself
// gets reported. Start aborts cleanly, unwinding whatever already
// started, if a stop is requested while a later step is still running.
package lifecycle
