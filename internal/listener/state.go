// Package listener aggregates every forwarding rule of one ALB listener,
// loading them from the LB control plane and persisting shed/restore
// mutations back. It has no life beyond one handler invocation: there is no
// in-process state carried between AlarmEventHandler/TickHandler calls.
package listener

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/weights"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
)

// State aggregates all forward-action rules of one listener.
type State struct {
	ListenerArn string
	rules       []*weights.RuleWeights
	lb          *lbadapter.Client
}

// Load reads every forward-action rule of listenerArn from the LB and builds
// a State over them. If DescribeRules fails (listener not found, access
// denied, network error), State is constructed with zero rules — every
// subsequent operation on it becomes a no-op, making the controller
// fail-safe: inability to read state produces inaction, not corruption.
func Load(ctx context.Context, lb *lbadapter.Client, listenerArn string) *State {
	s := &State{ListenerArn: listenerArn, lb: lb}

	lbRules, err := lb.DescribeRules(ctx, listenerArn)
	if err != nil {
		log.Printf("error: describe rules for listener %s: %v", listenerArn, err)
		return s
	}

	for _, r := range lbRules {
		rw := weights.New(r.RuleArn, listenerArn, r.IsDefault)
		for _, tg := range r.TargetGroups {
			rw.AddTarget(tg.TargetGroupArn, int(tg.Weight))
		}
		s.rules = append(s.rules, rw)
	}

	return s
}

// Rules returns the listener's forward-action rules.
func (s *State) Rules() []*weights.RuleWeights {
	return s.rules
}

// AnySheddable reports whether any rule still permits shedding from source
// under maxShedPct.
func (s *State) AnySheddable(source string, maxShedPct int) bool {
	for _, r := range s.rules {
		if r.IsSheddable(source, maxShedPct) {
			return true
		}
	}
	return false
}

// AnyRestorable reports whether any rule still has weight to reclaim for
// source.
func (s *State) AnyRestorable(source string) bool {
	for _, r := range s.rules {
		if r.IsRestorable(source) {
			return true
		}
	}
	return false
}

// Shed applies one shed step to source on every rule, then persists all of
// them.
func (s *State) Shed(ctx context.Context, source string, requestedPct, maxShedPct int) error {
	for _, r := range s.rules {
		r.Shed(source, requestedPct, maxShedPct)
	}
	return s.persist(ctx)
}

// Restore applies one restore step to source on every rule, then persists
// all of them.
func (s *State) Restore(ctx context.Context, source string, requestedPct int) error {
	for _, r := range s.rules {
		r.Restore(source, requestedPct)
	}
	return s.persist(ctx)
}

// persist writes every rule's current weights back to the LB, one rule per
// goroutine. Per spec.md §5, the LB modify calls may run in parallel but must
// all complete before the caller proceeds to re-enqueue; errgroup.Group gives
// exactly that join-before-continue discipline.
func (s *State) persist(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range s.rules {
		r := r
		g.Go(func() error {
			targets := toLBWeights(r.Snapshot())
			if r.IsDefault {
				return s.lb.SaveListenerDefault(gctx, s.ListenerArn, targets)
			}
			return s.lb.SaveRule(gctx, r.RuleID, targets)
		})
	}

	return g.Wait()
}

func toLBWeights(snapshot []weights.TargetWeight) []lbadapter.TargetGroupWeight {
	out := make([]lbadapter.TargetGroupWeight, 0, len(snapshot))
	for _, tw := range snapshot {
		out = append(out, lbadapter.TargetGroupWeight{
			TargetGroupArn: tw.TargetGroupID,
			Weight:         int32(tw.Weight),
		})
	}
	return out
}
