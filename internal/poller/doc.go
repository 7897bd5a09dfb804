// Package poller runs a predicate at a fixed interval until it reports done or
// a deadline elapses. It is the only waiting primitive used by the update and
// readiness helpers: every retry against the eventually-consistent store is
// bounded by a Poller.
//
// # Semantics
//
//   - The predicate is called immediately, then once per Interval.
//   - The first successful attempt ends the poll; its value is returned.
//   - If Timeout elapses first, the outcome is not ready and the error is nil.
//     The last attempt's value is still returned so callers can build a
//     TimeoutError carrying their own diagnostics.
//   - A predicate error aborts the poll at once, unless the error was caused by
//     the poll deadline itself, in which case the poll timed out.
//
// Predicates may be called any number of times and must tolerate that.
package poller
