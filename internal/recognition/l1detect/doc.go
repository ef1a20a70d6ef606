// Package l1detect owns Layer 1 (Detections) of the recognition data model.
//
// Responsibilities: the per-frame payload produced by the external object
// and pose detector, selection of the operator (the person nearest the
// frame centre) and their wrists, the background inference worker that
// publishes the latest result, and recorded-session replay.
// Key types: DetectionResult, DetectedBox, Person, Worker, Recording.
//
// Dependency rule: L1 depends on no other recognition layer.
package l1detect
