// Package alarmevent implements AlarmEventHandler (C4): the entry point for
// CloudWatch alarm state-change notifications, the first step of a
// shed/restore episode.
package alarmevent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/config"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/controller"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/listener"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/statusmsg"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/idempotency"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/queueadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/weighthistory"
)

const expectedDetailType = "CloudWatch Alarm State Change"

const dedupWindow = 5 * time.Minute

// Event is the subset of an EventBridge CloudWatch alarm state-change event
// this handler consumes, per spec.md §6.
type Event struct {
	ID          string          `json:"id"`
	DetailType  string          `json:"detail-type"`
	Resources   []string        `json:"resources"`
	Account     string          `json:"account"`
	Region      string          `json:"region"`
	Detail      json.RawMessage `json:"detail"`
}

type detail struct {
	AlarmName string `json:"alarmName"`
	State     struct {
		Value string `json:"value"`
	} `json:"state"`
	Configuration struct {
		Metrics []struct {
			MetricStat struct {
				Metric struct {
					Dimensions struct {
						TargetGroup string `json:"TargetGroup"`
					} `json:"dimensions"`
				} `json:"metric"`
			} `json:"metricStat"`
		} `json:"metrics"`
	} `json:"configuration"`
}

// Response is the handler's return value.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Handler holds every external collaborator AlarmEventHandler calls.
type Handler struct {
	Config       *config.Config
	LB           *lbadapter.Client
	Queue        queueadapter.Enqueuer
	Idempotency  idempotency.Store
	WeightHist   weighthistory.Recorder
	Audit        audit.Store
}

// Handle processes one alarm state-change event.
func (h *Handler) Handle(ctx context.Context, ev Event) (Response, error) {
	if ev.DetailType != expectedDetailType {
		return Response{StatusCode: 403, Message: "Unsupported event type: " + ev.DetailType}, nil
	}

	var d detail
	if err := json.Unmarshal(ev.Detail, &d); err != nil {
		return Response{}, fmt.Errorf("malformed alarm event detail: %w", err)
	}

	seen, err := h.Idempotency.Seen(ctx, ev.ID)
	if err != nil {
		log.Printf("warn: idempotency check failed, proceeding (fail open): %v", err)
	}
	if seen {
		return Response{StatusCode: 200, Message: "Duplicate event, skipped"}, nil
	}

	alarmArn := ""
	if len(ev.Resources) > 0 {
		alarmArn = ev.Resources[0]
	}

	targetGroupDimension := ""
	if len(d.Configuration.Metrics) > 0 {
		targetGroupDimension = d.Configuration.Metrics[0].MetricStat.Metric.Dimensions.TargetGroup
	}
	ptgArn := fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:%s", ev.Region, ev.Account, targetGroupDimension)

	state := listener.Load(ctx, h.LB, h.Config.ElbListenerArn)

	knobs := controller.Knobs{
		ShedStepPct: h.Config.ElbShedPercent,
		MaxShedPct:  h.Config.MaxElbShedPercent,
	}

	alarmState := statusmsg.AlarmState(d.State.Value)

	action, ctrlErr := controller.FirstContact(ctx, state, ptgArn, alarmState, knobs)

	rec := audit.Record{
		InvocationID:         uuid.New(),
		OccurredAt:           time.Now(),
		Source:               "alarm_event",
		AlarmName:            d.AlarmName,
		AlarmState:           alarmState,
		PriorAction:          statusmsg.ActionNone,
		NewAction:            action,
		ListenerID:           h.Config.ElbListenerArn,
		PrimaryTargetGroupID: ptgArn,
		Err:                  ctrlErr,
	}
	if auditErr := h.Audit.Append(ctx, rec); auditErr != nil {
		return Response{}, fmt.Errorf("append audit record: %w", auditErr)
	}

	if ctrlErr != nil {
		return Response{}, fmt.Errorf("first-contact decision: %w", ctrlErr)
	}

	mutated := alarmState == statusmsg.AlarmALARM
	if err := h.recordWeights(ctx, state, action, mutated); err != nil {
		log.Printf("warn: weight history recording failed: %v", err)
	}

	if err := h.Idempotency.MarkSeen(ctx, ev.ID, dedupWindow); err != nil {
		log.Printf("warn: idempotency mark-seen failed: %v", err)
	}

	if action == statusmsg.ActionNone {
		return Response{StatusCode: 200, Message: "Processed alarm:" + string(action)}, nil
	}

	msg := statusmsg.StatusMessage{
		AlbAlarmAction:      action,
		AlarmArn:            alarmArn,
		AlarmName:           d.AlarmName,
		ElbListenerArn:       h.Config.ElbListenerArn,
		ElbShedPercent:      h.Config.ElbShedPercent,
		MaxElbShedPercent:   h.Config.MaxElbShedPercent,
		ElbRestorePercent:   h.Config.ElbRestorePercent,
		LoadBalancerArn:     h.Config.ElbArn,
		SqsQueueURL:         h.Config.SqsQueueURL,
		ShedMesgDelaySec:    h.Config.ShedMesgDelaySec,
		RestoreMesgDelaySec: h.Config.RestoreMesgDelaySec,
		TargetGroupArn:      ptgArn,
	}

	delay := time.Duration(h.Config.ShedMesgDelaySec) * time.Second
	if action == statusmsg.ActionRestore {
		delay = time.Duration(h.Config.RestoreMesgDelaySec) * time.Second
	}

	body, err := statusmsg.Encode(msg)
	if err != nil {
		return Response{}, fmt.Errorf("encode status message: %w", err)
	}

	if err := h.Queue.Enqueue(ctx, h.Config.SqsQueueURL, delay, body); err != nil {
		return Response{}, fmt.Errorf("enqueue status message: %w", err)
	}

	return Response{StatusCode: 200, Message: "Processed alarm:" + string(action)}, nil
}

func (h *Handler) recordWeights(ctx context.Context, state *listener.State, action statusmsg.Action, mutated bool) error {
	if !mutated {
		return nil
	}
	now := time.Now()
	for _, r := range state.Rules() {
		for _, tw := range r.Snapshot() {
			err := h.WeightHist.RecordWeight(ctx, weighthistory.Point{
				Timestamp:     now,
				RuleID:        r.RuleID,
				TargetGroupID: tw.TargetGroupID,
				Weight:        tw.Weight,
				EpisodeAction: string(action),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
