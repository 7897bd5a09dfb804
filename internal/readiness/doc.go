// Package readiness waits for a resource in the eventually-consistent store to
// reach a target state: a readiness marker written by the server, its
// deletion, or its replacement by a running instance with a new identity.
//
// Every wait is a poll of read-only observations. A resource that is absent is
// an observation like any other, so waiting for deletion and waiting for a
// resource to appear use the same machinery. A field that is not populated yet
// makes a condition false; only a store failure other than NotFound aborts a
// wait.
package readiness
