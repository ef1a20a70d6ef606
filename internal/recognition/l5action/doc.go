// Package l5action owns Layer 5 (Actions) of the recognition data model.
//
// Responsibilities: turning the per-frame intersected label into discrete
// pick actions with a four-state machine (idle, dwelling, holding,
// dispatch) and handing each pick to a PickConsumer.
// Key types: Machine, State, Pick, PickConsumer.
//
// Dependency rule: L5 may depend on L1–L4. The plan validator (L6) is
// reached only through the PickConsumer interface.
package l5action
