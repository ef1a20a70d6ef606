// Package pipeline provides orchestration for the assembly recognition
// pipeline.
//
// It wires the L1-L6 layer packages into a per-frame tick owned by a
// single Session aggregate, turns layer results into Events for adapter
// sinks (persistence, stack light, live stream), and runs the frame loop
// with its background inference worker. The pipeline does not own domain
// logic; it delegates to layer packages and adapters.
package pipeline
