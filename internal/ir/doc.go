// Package ir provides the foundational types for the task ordering engine.
//
// This package contains type definitions, the error taxonomy, canonical JSON
// and fingerprint helpers only. All other internal packages import ir; ir
// imports nothing internal. This keeps ir the bottom layer with no circular
// dependencies.
//
// Key design constraints:
//   - Tasks are flat records; parent/child links are ids resolved by lookup,
//     never in-memory pointers between records
//   - Sequence is an opaque string; the only valid operation on it is
//     lexicographic comparison
//   - Nullable references (milestone, parent) are *string, nil meaning
//     "unassigned" or "root"
//   - All JSON tags use snake_case
package ir
