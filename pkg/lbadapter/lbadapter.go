// Package lbadapter is the thin seam over the ALB/ELBv2 control API: describe
// a listener's rules, and write back a rule's (or the listener default's)
// forward-config weights. It wraps github.com/aws/aws-sdk-go-v2's
// elasticloadbalancingv2 client the way the teacher's pkg/messaging wraps a
// NATS connection: translate errors with %w, expose a narrow method set.
package lbadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/aws-samples/alb-target-group-load-shedding/pkg/circuit"
)

// Rule is one listener rule as reported by DescribeRules, already filtered to
// forward-action rules only (redirect/fixed-response rules are dropped by
// DescribeRules before they ever reach ListenerState).
type Rule struct {
	RuleArn      string
	IsDefault    bool
	TargetGroups []TargetGroupWeight
}

// TargetGroupWeight is one (target group arn, weight) pair of a rule's
// forward config.
type TargetGroupWeight struct {
	TargetGroupArn string
	Weight         int32
}

// ELBv2API is the subset of the elasticloadbalancingv2 client this system
// calls. Declared as an interface so tests substitute an in-memory double.
type ELBv2API interface {
	DescribeRules(ctx context.Context, params *elasticloadbalancingv2.DescribeRulesInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeRulesOutput, error)
	ModifyRule(ctx context.Context, params *elasticloadbalancingv2.ModifyRuleInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyRuleOutput, error)
	ModifyListener(ctx context.Context, params *elasticloadbalancingv2.ModifyListenerInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyListenerOutput, error)
}

// Client wraps an ELBv2API client. Every call is protected by a circuit
// breaker, keyed by listener ARN (by rule ARN for ModifyRule), so a run of
// ELBv2 throttling/errors during a shed
// storm trips fast instead of piling up retries against an already
// struggling control-plane API.
type Client struct {
	api     ELBv2API
	breaker *circuit.BreakerGroup
}

// New wraps an existing ELBv2 SDK client.
func New(api ELBv2API) *Client {
	return &Client{
		api: api,
		breaker: circuit.NewBreakerGroup(circuit.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 1,
		}),
	}
}

// DescribeRules returns every forward-action rule of a listener. Non-forward
// rules (redirect, fixed-response) and rules with no actions are skipped, per
// spec.md §4.2.
func (c *Client) DescribeRules(ctx context.Context, listenerArn string) ([]Rule, error) {
	var out *elasticloadbalancingv2.DescribeRulesOutput
	err := c.breaker.Execute(ctx, listenerArn, func() error {
		var apiErr error
		out, apiErr = c.api.DescribeRules(ctx, &elasticloadbalancingv2.DescribeRulesInput{
			ListenerArn: aws.String(listenerArn),
		})
		return apiErr
	})
	if err != nil {
		return nil, fmt.Errorf("describe rules for listener %s: %w", listenerArn, err)
	}

	rules := make([]Rule, 0, len(out.Rules))
	for _, r := range out.Rules {
		if len(r.Actions) == 0 {
			continue
		}
		action := r.Actions[0]
		if action.Type != elbtypes.ActionTypeEnumForward || action.ForwardConfig == nil {
			continue
		}

		rule := Rule{
			RuleArn:   aws.ToString(r.RuleArn),
			IsDefault: aws.ToBool(r.IsDefault),
		}
		for _, tg := range action.ForwardConfig.TargetGroups {
			weight := int32(0)
			if tg.Weight != nil {
				weight = *tg.Weight
			}
			rule.TargetGroups = append(rule.TargetGroups, TargetGroupWeight{
				TargetGroupArn: aws.ToString(tg.TargetGroupArn),
				Weight:         weight,
			})
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// SaveRule persists a non-default rule's forward config via ModifyRule.
func (c *Client) SaveRule(ctx context.Context, ruleArn string, targets []TargetGroupWeight) error {
	err := c.breaker.Execute(ctx, ruleArn, func() error {
		_, apiErr := c.api.ModifyRule(ctx, &elasticloadbalancingv2.ModifyRuleInput{
			RuleArn: aws.String(ruleArn),
			Actions: []elbtypes.Action{forwardAction(targets)},
		})
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("modify rule %s: %w", ruleArn, err)
	}
	return nil
}

// SaveListenerDefault persists the listener's default-rule forward config via
// ModifyListener — the default rule is written through a different API call
// than every other rule, per spec.md §3/§4.2.
func (c *Client) SaveListenerDefault(ctx context.Context, listenerArn string, targets []TargetGroupWeight) error {
	err := c.breaker.Execute(ctx, listenerArn, func() error {
		_, apiErr := c.api.ModifyListener(ctx, &elasticloadbalancingv2.ModifyListenerInput{
			ListenerArn:    aws.String(listenerArn),
			DefaultActions: []elbtypes.Action{forwardAction(targets)},
		})
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("modify listener default action %s: %w", listenerArn, err)
	}
	return nil
}

func forwardAction(targets []TargetGroupWeight) elbtypes.Action {
	groups := make([]elbtypes.TargetGroupTuple, 0, len(targets))
	for _, t := range targets {
		weight := t.Weight
		groups = append(groups, elbtypes.TargetGroupTuple{
			TargetGroupArn: aws.String(t.TargetGroupArn),
			Weight:         &weight,
		})
	}
	return elbtypes.Action{
		Type: elbtypes.ActionTypeEnumForward,
		ForwardConfig: &elbtypes.ForwardActionConfig{
			TargetGroups: groups,
		},
	}
}
