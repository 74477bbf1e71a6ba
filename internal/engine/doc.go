// Package engine implements the task Move Engine.
//
// The engine is the single mutating entrypoint for task placement. Every
// operation follows the same shape:
//
//  1. Read the records it needs from the Store (task, parent, ancestors,
//     destination siblings)
//  2. Run the pure checks in package validate; any failure returns before a
//     write is issued
//  3. Compute the new order key with package orderkey, rebalancing the
//     destination sibling group once if the keys are exhausted
//  4. Issue exactly one guarded write. The write carries the task version and
//     a fingerprint of the sibling group as read in step 1; the Store rejects
//     it with a conflict error if either moved on
//
// The engine never retries. A conflict is returned to the caller, who re-issues
// the same semantic request (for example "after task X"). Because destinations
// name sibling ids rather than absolute indexes, a retry after a fresh read
// converges.
//
// Indent, Outdent, MoveUp and MoveDown are parameterizations of MoveTask; they
// hold no state between calls.
//
// CRITICAL PATTERNS:
//
// Caller identity is an explicit parameter on every mutating call and is
// recorded on the row and in the ledger. The engine reads no ambient state.
//
// Sibling groups are always read sorted by (sequence, id). Order keys are
// opaque strings; nothing outside package orderkey inspects them.
package engine
