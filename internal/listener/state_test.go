package listener

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
)

// fakeELBv2 is an in-memory double of lbadapter.ELBv2API.
type fakeELBv2 struct {
	rules           []elbtypes.Rule
	modifyRuleCalls []elasticloadbalancingv2.ModifyRuleInput
	modifyListenerCalls []elasticloadbalancingv2.ModifyListenerInput
	describeErr     error
}

func (f *fakeELBv2) DescribeRules(ctx context.Context, in *elasticloadbalancingv2.DescribeRulesInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeRulesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &elasticloadbalancingv2.DescribeRulesOutput{Rules: f.rules}, nil
}

func (f *fakeELBv2) ModifyRule(ctx context.Context, in *elasticloadbalancingv2.ModifyRuleInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyRuleOutput, error) {
	f.modifyRuleCalls = append(f.modifyRuleCalls, *in)
	return &elasticloadbalancingv2.ModifyRuleOutput{}, nil
}

func (f *fakeELBv2) ModifyListener(ctx context.Context, in *elasticloadbalancingv2.ModifyListenerInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyListenerOutput, error) {
	f.modifyListenerCalls = append(f.modifyListenerCalls, *in)
	return &elasticloadbalancingv2.ModifyListenerOutput{}, nil
}

func forwardRule(arn string, isDefault bool, targets map[string]int32, order []string) elbtypes.Rule {
	groups := make([]elbtypes.TargetGroupTuple, 0, len(order))
	for _, tg := range order {
		w := targets[tg]
		groups = append(groups, elbtypes.TargetGroupTuple{TargetGroupArn: aws.String(tg), Weight: &w})
	}
	return elbtypes.Rule{
		RuleArn:   aws.String(arn),
		IsDefault: aws.Bool(isDefault),
		Actions: []elbtypes.Action{{
			Type:          elbtypes.ActionTypeEnumForward,
			ForwardConfig: &elbtypes.ForwardActionConfig{TargetGroups: groups},
		}},
	}
}

func TestLoadSkipsNonForwardRules(t *testing.T) {
	fake := &fakeELBv2{
		rules: []elbtypes.Rule{
			forwardRule("arn:rule/1", false, map[string]int32{"ptg": 100, "stg": 0}, []string{"ptg", "stg"}),
			{
				RuleArn: aws.String("arn:rule/2"),
				Actions: []elbtypes.Action{{Type: elbtypes.ActionTypeEnumRedirect}},
			},
		},
	}

	s := Load(context.Background(), lbadapter.New(fake), "arn:listener/1")

	if len(s.Rules()) != 1 {
		t.Fatalf("expected 1 forward rule loaded, got %d", len(s.Rules()))
	}
}

func TestLoadFailureYieldsZeroRulesFailSafe(t *testing.T) {
	fake := &fakeELBv2{describeErr: fmt.Errorf("listener not found")}
	s := Load(context.Background(), lbadapter.New(fake), "arn:listener/missing")

	if len(s.Rules()) != 0 {
		t.Fatalf("expected zero rules on describe failure, got %d", len(s.Rules()))
	}
	if s.AnySheddable("ptg", 100) {
		t.Fatalf("expected fail-safe: no rules means nothing is sheddable")
	}
}

func TestShedPersistsDefaultAndNonDefaultDifferently(t *testing.T) {
	fake := &fakeELBv2{
		rules: []elbtypes.Rule{
			forwardRule("arn:rule/1", false, map[string]int32{"ptg": 100, "stg": 0}, []string{"ptg", "stg"}),
			forwardRule("arn:listener/1", true, map[string]int32{"ptg": 100, "stg": 0}, []string{"ptg", "stg"}),
		},
	}

	s := Load(context.Background(), lbadapter.New(fake), "arn:listener/1")
	if err := s.Shed(context.Background(), "ptg", 20, 100); err != nil {
		t.Fatalf("Shed: %v", err)
	}

	if len(fake.modifyRuleCalls) != 1 {
		t.Fatalf("expected 1 ModifyRule call, got %d", len(fake.modifyRuleCalls))
	}
	if len(fake.modifyListenerCalls) != 1 {
		t.Fatalf("expected 1 ModifyListener call for the default rule, got %d", len(fake.modifyListenerCalls))
	}

	if !s.AnySheddable("ptg", 100) {
		t.Fatalf("expected still sheddable below the cap")
	}
}

func TestAnyRestorableAggregatesAcrossRules(t *testing.T) {
	fake := &fakeELBv2{
		rules: []elbtypes.Rule{
			forwardRule("arn:rule/1", false, map[string]int32{"ptg": 100, "stg": 0}, []string{"ptg", "stg"}),
		},
	}
	s := Load(context.Background(), lbadapter.New(fake), "arn:listener/1")
	if s.AnyRestorable("ptg") {
		t.Fatalf("expected not restorable: no weight shed yet")
	}

	if err := s.Shed(context.Background(), "ptg", 20, 100); err != nil {
		t.Fatalf("Shed: %v", err)
	}
	if !s.AnyRestorable("ptg") {
		t.Fatalf("expected restorable after shedding")
	}
}
