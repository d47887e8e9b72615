// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunCompleteTwoFactor, RunReveal, etc.) accepts
// a typed dependency struct and returns results without side-effects beyond
// those dependencies. Sentinel errors, metric ids and audit event names are
// injected through the Errors, Metrics and Events sub-structs so the root
// package stays the only owner of its public vocabulary.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, challenge and
// enrollment stores, attempt limiters, audit dispatcher, and metrics. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGuard (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
