package tick

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/statusmsg"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/alarmadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/weighthistory"
)

const ptgArn = "arn:aws:elasticloadbalancing:us-east-1:111122223333:targetgroup/ptg/abc"
const stgArn = "arn:aws:elasticloadbalancing:us-east-1:111122223333:targetgroup/stg/def"

type fakeELBv2 struct {
	rules           []elbtypes.Rule
	modifyRuleCalls int
}

func (f *fakeELBv2) DescribeRules(ctx context.Context, in *elasticloadbalancingv2.DescribeRulesInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeRulesOutput, error) {
	return &elasticloadbalancingv2.DescribeRulesOutput{Rules: f.rules}, nil
}

func (f *fakeELBv2) ModifyRule(ctx context.Context, in *elasticloadbalancingv2.ModifyRuleInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyRuleOutput, error) {
	f.modifyRuleCalls++
	return &elasticloadbalancingv2.ModifyRuleOutput{}, nil
}

func (f *fakeELBv2) ModifyListener(ctx context.Context, in *elasticloadbalancingv2.ModifyListenerInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.ModifyListenerOutput, error) {
	return &elasticloadbalancingv2.ModifyListenerOutput{}, nil
}

func twoTargetRule(ptg, stg int32) elbtypes.Rule {
	return elbtypes.Rule{
		RuleArn:   aws.String("arn:rule/1"),
		IsDefault: aws.Bool(false),
		Actions: []elbtypes.Action{{
			Type: elbtypes.ActionTypeEnumForward,
			ForwardConfig: &elbtypes.ForwardActionConfig{
				TargetGroups: []elbtypes.TargetGroupTuple{
					{TargetGroupArn: aws.String(ptgArn), Weight: &ptg},
					{TargetGroupArn: aws.String(stgArn), Weight: &stg},
				},
			},
		}},
	}
}

type fakeCloudWatch struct {
	state string
	empty bool
}

func (f *fakeCloudWatch) DescribeAlarms(ctx context.Context, in *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	if f.empty {
		return &cloudwatch.DescribeAlarmsOutput{}, nil
	}
	return &cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{{StateValue: cwtypes.StateValue(f.state)}},
	}, nil
}

type fakeEnqueuer struct {
	calls int
	delay time.Duration
	body  string
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, queueID string, delay time.Duration, body string) error {
	f.calls++
	f.delay = delay
	f.body = body
	return nil
}

func baseMessage(prior statusmsg.Action) statusmsg.StatusMessage {
	return statusmsg.StatusMessage{
		AlbAlarmAction:      prior,
		AlarmName:           "my-alarm",
		ElbListenerArn:      "arn:listener/1",
		ElbShedPercent:      20,
		MaxElbShedPercent:   100,
		ElbRestorePercent:   10,
		SqsQueueURL:         "https://queue",
		ShedMesgDelaySec:    60,
		RestoreMesgDelaySec: 120,
		TargetGroupArn:      ptgArn,
	}
}

func envelopeFor(t *testing.T, msg statusmsg.StatusMessage) statusmsg.QueueEnvelope {
	t.Helper()
	body, err := statusmsg.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return statusmsg.QueueEnvelope{Records: []statusmsg.QueueRecord{{Body: body}}}
}

func TestHandleEmptyBatchIsNoop(t *testing.T) {
	h := &Handler{}
	resp, err := h.Handle(context.Background(), statusmsg.QueueEnvelope{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response for empty batch, got %+v", resp)
	}
}

// Scenario F — missing alarm on tick.
func TestHandleMissingAlarmYieldsNone(t *testing.T) {
	fake := &fakeELBv2{rules: []elbtypes.Rule{twoTargetRule(90, 10)}}
	queue := &fakeEnqueuer{}

	h := &Handler{
		LB:         lbadapter.New(fake),
		Alarm:      alarmadapter.New(&fakeCloudWatch{empty: true}),
		Queue:      queue,
		WeightHist: weighthistory.NoopRecorder{},
		Audit:      audit.NewInMemoryStore(1),
	}

	resp, err := h.Handle(context.Background(), envelopeFor(t, baseMessage(statusmsg.ActionRestore)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp) != 1 || resp[0].StatusCode != 200 {
		t.Fatalf("resp = %+v, want a single 200 response", resp)
	}
	if fake.modifyRuleCalls != 0 {
		t.Fatalf("expected no mutation when alarm is missing")
	}
	if queue.calls != 0 {
		t.Fatalf("expected no enqueue when alarm is missing")
	}
}

func TestHandleAlarmShedPersistsAndReEnqueues(t *testing.T) {
	fake := &fakeELBv2{rules: []elbtypes.Rule{twoTargetRule(100, 0)}}
	queue := &fakeEnqueuer{}

	h := &Handler{
		LB:         lbadapter.New(fake),
		Alarm:      alarmadapter.New(&fakeCloudWatch{state: "ALARM"}),
		Queue:      queue,
		WeightHist: weighthistory.NoopRecorder{},
		Audit:      audit.NewInMemoryStore(1),
	}

	resp, err := h.Handle(context.Background(), envelopeFor(t, baseMessage(statusmsg.ActionShed)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resp))
	}
	if fake.modifyRuleCalls != 1 {
		t.Fatalf("expected 1 ModifyRule call, got %d", fake.modifyRuleCalls)
	}
	if queue.calls != 1 {
		t.Fatalf("expected re-enqueue, got %d calls", queue.calls)
	}
	if queue.delay != 60*time.Second {
		t.Fatalf("delay = %v, want 60s", queue.delay)
	}
}

func TestHandleFullyRestoredStopsReenqueue(t *testing.T) {
	fake := &fakeELBv2{rules: []elbtypes.Rule{twoTargetRule(100, 0)}}
	queue := &fakeEnqueuer{}

	h := &Handler{
		LB:         lbadapter.New(fake),
		Alarm:      alarmadapter.New(&fakeCloudWatch{state: "OK"}),
		Queue:      queue,
		WeightHist: weighthistory.NoopRecorder{},
		Audit:      audit.NewInMemoryStore(1),
	}

	resp, err := h.Handle(context.Background(), envelopeFor(t, baseMessage(statusmsg.ActionRestore)))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp) != 1 || resp[0].Message != "New Alarm State:NONE" {
		t.Fatalf("resp = %+v, want NONE (already fully restored)", resp)
	}
	if fake.modifyRuleCalls != 0 {
		t.Fatalf("expected no mutation: nothing to restore")
	}
	if queue.calls != 0 {
		t.Fatalf("expected no re-enqueue on NONE")
	}
}
