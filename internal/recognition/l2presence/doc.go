// Package l2presence owns Layer 2 (Presence) of the recognition data model.
//
// Responsibilities: turning raw per-frame label detections into
// hysteresis-stabilised present/absent flags so that single-frame detector
// flicker never reaches the interaction test.
// Key types: Debouncer, StableBox.
//
// Dependency rule: L2 may depend on L1 only.
package l2presence
