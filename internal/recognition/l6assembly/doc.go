// Package l6assembly owns Layer 6 (Assembly) of the recognition data model.
//
// Responsibilities: holding the operator's assembly plan, checking each
// pick against the expected step, recording sequence errors as data, and
// counting completed units.
// Key types: Plan, Step, Validator, Status, ErrorRecord, Outcome.
//
// Dependency rule: L6 depends on nothing above L1. It satisfies the
// l5action.PickConsumer interface without importing it.
package l6assembly
