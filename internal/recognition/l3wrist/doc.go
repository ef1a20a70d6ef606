// Package l3wrist owns Layer 3 (Wrist tracking) of the recognition data model.
//
// Responsibilities: smoothing each operator wrist keypoint with a 2D
// constant-velocity Kalman filter and absorbing detector glitches through an
// outlier re-initialisation policy.
// Key types: Kalman, Tracker, TrackedPoint.
//
// Dependency rule: L3 may depend on L1 only.
package l3wrist
