// Package l4region owns Layer 4 (Interaction regions) of the recognition
// data model.
//
// Responsibilities: building the interaction rectangle around a filtered
// wrist position and deciding which stable part box, if any, the hand is
// touching this frame.
// Key types: Config, Tester, Hit.
//
// Dependency rule: L4 may depend on L1 and L2.
package l4region
