// Package dispatch applies live server-push events to local state. A
// registered-handler table routes each event type to exactly one
// handler; unknown types are ignored for forward compatibility. Handlers
// tolerate at-least-once delivery: they re-derive ids from either the
// event data or the broadcast envelope, consult the ephemeral intent
// guard to skip self-echoed events, fetch missing referenced entities,
// and write through the same prepare/batch primitives the reconciliation
// engine uses. Handler errors never escape the dispatcher; a dropped
// live update is corrected by the next full reconcile, but a crashed
// event loop is not.
package dispatch
