package pipeline

import (
	"slices"
	"sort"
)

// debugVars is the fixed set of values the live debug panel can watch,
// keyed by the names operators type in.
var debugVars = map[string]func(Snapshot) any{
	"session_id":      func(s Snapshot) any { return s.SessionID },
	"frame":           func(s Snapshot) any { return s.Frame },
	"detection_seq":   func(s Snapshot) any { return s.DetectionSeq },
	"state":           func(s Snapshot) any { return s.Action.State },
	"current_label":   func(s Snapshot) any { return s.Action.CurrentLabel },
	"hand_present":    func(s Snapshot) any { return s.Action.HandPresent },
	"box_in_b":        func(s Snapshot) any { return s.Action.BoxInB },
	"last_picked":     func(s Snapshot) any { return s.Action.LastPicked },
	"enter_count":     func(s Snapshot) any { return s.Action.EnterCount },
	"out_count":       func(s Snapshot) any { return s.Action.OutCount },
	"action_duration": func(s Snapshot) any { return s.Action.ActionDuration.Seconds() },
	"hit_hand":        func(s Snapshot) any { return s.Hit.Hand },
	"left_wrist":      func(s Snapshot) any { return s.Left.Tracked },
	"right_wrist":     func(s Snapshot) any { return s.Right.Tracked },
	"counters":        func(s Snapshot) any { return s.Counters },
	"stable_labels": func(s Snapshot) any {
		out := make([]string, 0, len(s.Stable))
		for _, b := range s.Stable {
			out = append(out, b.Label)
		}
		return out
	},
	"step_index":     func(s Snapshot) any { return s.Assembly.StepIndex },
	"expected":       func(s Snapshot) any { return s.Assembly.Expected },
	"remaining":      func(s Snapshot) any { return s.Assembly.Remaining },
	"complete":       func(s Snapshot) any { return s.Assembly.Complete },
	"completed":      func(s Snapshot) any { return s.Assembly.Completed },
	"errors":         func(s Snapshot) any { return s.Assembly.Errors },
	"pending_errors": func(s Snapshot) any { return s.Assembly.PendingErrors },
	"dropped_events": func(s Snapshot) any { return s.DroppedEvents },
}

// DebugVarNames returns every watchable name in sorted order.
func DebugVarNames() []string {
	names := make([]string, 0, len(debugVars))
	for n := range debugVars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DebugVars evaluates names against s. With no names, every variable is
// returned. Unknown names are reported separately and never evaluated.
func DebugVars(s Snapshot, names ...string) (values map[string]any, unknown []string) {
	if len(names) == 0 {
		names = DebugVarNames()
	}
	values = make(map[string]any, len(names))
	for _, n := range names {
		fn, ok := debugVars[n]
		if !ok {
			if !slices.Contains(unknown, n) {
				unknown = append(unknown, n)
			}
			continue
		}
		values[n] = fn(s)
	}
	return values, unknown
}
