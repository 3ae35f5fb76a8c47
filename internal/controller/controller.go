// Package controller implements the decision state machine: given the
// current alarm state, the prior action, and a listener's state, decide the
// next action and mutate listener weights accordingly.
package controller

import (
	"context"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/listener"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/statusmsg"
)

// Knobs are the numeric parameters that drive one decision, carried either
// from environment config (first-contact) or from a StatusMessage (tick).
type Knobs struct {
	ShedStepPct    int
	MaxShedPct     int
	RestoreStepPct int
}

// FirstContact implements spec.md §4.3.1: the decision made the first time an
// alarm state-change event is observed, with no prior action. ALARM causes an
// immediate shed step; OK defers restoration to the next tick.
func FirstContact(ctx context.Context, state *listener.State, source string, alarm statusmsg.AlarmState, knobs Knobs) (statusmsg.Action, error) {
	switch alarm {
	case statusmsg.AlarmALARM:
		if err := state.Shed(ctx, source, knobs.ShedStepPct, knobs.MaxShedPct); err != nil {
			return statusmsg.ActionNone, err
		}
		if state.AnySheddable(source, knobs.MaxShedPct) {
			return statusmsg.ActionShed, nil
		}
		return statusmsg.ActionNone, nil

	case statusmsg.AlarmOK:
		return statusmsg.ActionRestore, nil

	default:
		// INSUFFICIENT_DATA is not reachable on the first-contact path (only
		// ALARM/OK alarm state-change events reach AlarmEventHandler), but is
		// handled defensively per spec.md §9.
		return statusmsg.ActionNone, nil
	}
}

// Tick implements spec.md §4.3.2: the reconciliation decision made on every
// subsequent delayed delivery, given the alarm's current state and the
// previous tick's action.
func Tick(ctx context.Context, state *listener.State, source string, alarm statusmsg.AlarmState, prior statusmsg.Action, knobs Knobs) (statusmsg.Action, error) {
	switch alarm {
	case statusmsg.AlarmALARM:
		if prior == statusmsg.ActionShed {
			if err := state.Shed(ctx, source, knobs.ShedStepPct, knobs.MaxShedPct); err != nil {
				return statusmsg.ActionNone, err
			}
		}
		// prior == RESTORE: hysteresis — do nothing this tick, but the alarm
		// disagrees with the prior action, so schedule a corrective shed.
		if state.AnySheddable(source, knobs.MaxShedPct) {
			return statusmsg.ActionShed, nil
		}
		return statusmsg.ActionNone, nil

	case statusmsg.AlarmOK:
		if prior == statusmsg.ActionRestore {
			// Restore only while something is left to reclaim. The step that
			// brings source back to full weight still reports RESTORE; the
			// following tick finds nothing restorable and ends the episode.
			if !state.AnyRestorable(source) {
				return statusmsg.ActionNone, nil
			}
			if err := state.Restore(ctx, source, knobs.RestoreStepPct); err != nil {
				return statusmsg.ActionNone, err
			}
			return statusmsg.ActionRestore, nil
		}
		// prior == SHED: hysteresis — defer the actual restore to next tick.
		if state.AnyRestorable(source) {
			return statusmsg.ActionRestore, nil
		}
		return statusmsg.ActionNone, nil

	default: // INSUFFICIENT_DATA: carry the prior action forward unchanged.
		return prior, nil
	}
}
